// Package mcpbridge adapts tools hosted by an external Model Context
// Protocol server into toolkit.Tool, so operators can point vocegate at an
// existing MCP tool server without writing a Go wrapper per tool.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vocegate/vocegate/internal/toolkit"
)

// Transport selects how the bridge dials the MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// ServerConfig describes a single external MCP server to import tools from.
type ServerConfig struct {
	Name      string
	Transport Transport
	// Command is the executable plus arguments, space-separated, for
	// TransportStdio.
	Command string
	Env     map[string]string
	// URL is the endpoint for TransportStreamableHTTP.
	URL string
}

// Bridge connects to an MCP server and registers its tools into a
// toolkit.Registry. It holds a single client session: a second Import
// replaces the stored session, and Close closes only the most recent one.
type Bridge struct {
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// New creates a Bridge with a fresh MCP client identity.
func New() *Bridge {
	return &Bridge{
		client: mcpsdk.NewClient(&mcpsdk.Implementation{Name: "vocegate", Version: "1.0.0"}, nil),
	}
}

// Import connects to the server described by cfg, discovers its tools, and
// registers an adapter for each one into reg. The Bridge keeps the
// connection open for the lifetime of the registered tools; call Close when
// done.
func (b *Bridge) Import(ctx context.Context, cfg ServerConfig, reg *toolkit.Registry) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcpbridge: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcpbridge: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcpbridge: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("mcpbridge: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpbridge: connect to %q: %w", cfg.Name, err)
	}
	b.session = session

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpbridge: list tools for %q: %w", cfg.Name, err)
		}
		reg.Register(&remoteTool{session: session, def: *tool})
	}
	return nil
}

// Close closes the bridge's server connection, if any.
func (b *Bridge) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

// remoteTool adapts a single MCP-hosted tool to toolkit.Tool.
type remoteTool struct {
	session *mcpsdk.ClientSession
	def     mcpsdk.Tool
}

var _ toolkit.Tool = (*remoteTool)(nil)

func (t *remoteTool) Name() string        { return t.def.Name }
func (t *remoteTool) Description() string { return t.def.Description }

func (t *remoteTool) Schema() map[string]any {
	if t.def.InputSchema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := t.def.InputSchema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(t.def.InputSchema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

func (t *remoteTool) Execute(ctx context.Context, params map[string]any, _ toolkit.ExecContext) (any, error) {
	res, err := t.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: t.def.Name, Arguments: params})
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: call %q: %w", t.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return nil, &toolkit.BusinessError{Message: sb.String()}
	}
	return sb.String(), nil
}

func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
