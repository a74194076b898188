package config_test

import (
	"testing"

	"github.com/vocegate/vocegate/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "local-tools", Transport: "stdio", Command: "./tools"},
		}},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.MCPServersChanged {
		t.Error("expected MCPServersChanged=false for identical configs")
	}
	if len(d.MCPServerChanges) != 0 {
		t.Errorf("expected 0 MCP server changes, got %d", len(d.MCPServerChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_MCPServerURLChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "remote-tools", Transport: "streamable-http", URL: "http://a"},
	}}}
	new := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "remote-tools", Transport: "streamable-http", URL: "http://b"},
	}}}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	if len(d.MCPServerChanges) != 1 || !d.MCPServerChanges[0].URLChanged {
		t.Error("expected remote-tools URLChanged=true")
	}
}

func TestDiff_MCPServerAdded(t *testing.T) {
	t.Parallel()
	old := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "a"},
	}}}
	new := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "a"},
		{Name: "b"},
	}}}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	found := false
	for _, sc := range d.MCPServerChanges {
		if sc.Name == "b" && sc.Added {
			found = true
		}
	}
	if !found {
		t.Error("expected server b Added=true")
	}
}

func TestDiff_MCPServerRemoved(t *testing.T) {
	t.Parallel()
	old := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "a"},
		{Name: "b"},
	}}}
	new := &config.Config{MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
		{Name: "a"},
	}}}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	found := false
	for _, sc := range d.MCPServerChanges {
		if sc.Name == "b" && sc.Removed {
			found = true
		}
	}
	if !found {
		t.Error("expected server b Removed=true")
	}
}

func TestDiff_ToolsEnabledChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Tools: config.ToolsConfig{Enabled: []string{"weather"}}}
	new := &config.Config{Tools: config.ToolsConfig{Enabled: []string{"weather", "rag"}}}

	d := config.Diff(old, new)
	if !d.ToolsEnabledChanged {
		t.Error("expected ToolsEnabledChanged=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "a"},
			{Name: "b"},
		}},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelWarn},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "a", Command: "./new-a"},
			{Name: "c"},
		}},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	changes := make(map[string]config.MCPServerDiff)
	for _, sc := range d.MCPServerChanges {
		changes[sc.Name] = sc
	}
	if !changes["a"].CmdChanged {
		t.Error("expected a CmdChanged=true")
	}
	if !changes["b"].Removed {
		t.Error("expected b Removed=true")
	}
	if !changes["c"].Added {
		t.Error("expected c Added=true")
	}
}
