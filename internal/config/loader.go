package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"model_service": {"websocket"},
	"llm":           {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings":    {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued tunables with their package defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.InactivityThresholdSeconds == 0 {
		cfg.Server.InactivityThresholdSeconds = DefaultInactivityThresholdSeconds
	}
	if cfg.Server.SweepIntervalSeconds == 0 {
		cfg.Server.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
}

// Default host/port used when neither the config file nor the environment
// names a listen address.
const (
	DefaultPort = "8000"
	DefaultHost = "0.0.0.0"
)

// ApplyEnvOverrides layers process environment variables on top of an
// already-loaded [Config], following a flag-plus-YAML convention: the YAML
// file supplies the bulk of the configuration, and a
// small set of deployment-environment variables override the fields that
// container schedulers and orchestration tooling most commonly need to set
// per-instance rather than bake into an image.
//
//   - PORT / HOST combine into server.listen_addr (PORT alone keeps the
//     configured or default host; HOST alone keeps the configured or
//     default port).
//   - VOCEGATE_REGION, if set, is prepended to model_service.regions when
//     the file did not already name a region.
//
// Call after [Load]/[LoadFromReader] and before [Validate] if constructing
// the pipeline manually; [Load] does not call this automatically since tests
// that load a complete, self-contained config should not be perturbed by the
// ambient environment.
func ApplyEnvOverrides(cfg *Config) {
	host, hasHost := os.LookupEnv("HOST")
	port, hasPort := os.LookupEnv("PORT")
	if hasHost || hasPort {
		curHost, curPort := splitListenAddr(cfg.Server.ListenAddr)
		if !hasHost {
			host = curHost
		}
		if !hasPort {
			port = curPort
		}
		if host == "" {
			host = DefaultHost
		}
		if port == "" {
			port = DefaultPort
		}
		cfg.Server.ListenAddr = net.JoinHostPort(host, port)
	}

	if region := os.Getenv("VOCEGATE_REGION"); region != "" && len(cfg.ModelService.Regions) == 0 {
		cfg.ModelService.Regions = []string{region}
	}
}

// splitListenAddr best-effort splits addr into host and port, tolerating the
// empty string and addresses missing a host (":8000").
func splitListenAddr(addr string) (host, port string) {
	if addr == "" {
		return "", ""
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	if cfg.ModelService.Name == "" {
		errs = append(errs, errors.New("model_service.name is required"))
	}
	validateProviderName("model_service", cfg.ModelService.Name)

	validateProviderName("llm", cfg.Tools.Reasoning.Name)
	validateProviderName("embeddings", cfg.Memory.Embeddings.Name)

	if cfg.Memory.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("memory.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
		cfg.Memory.EmbeddingDimensions = 1536
	}
	if cfg.Memory.PostgresDSN == "" && cfg.Memory.Embeddings.Name != "" {
		slog.Warn("memory.embeddings is configured but memory.postgres_dsn is empty; search_knowledge_base will be unavailable")
	}

	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case "streamable-http":
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
