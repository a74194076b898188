// Command vocegate is the main entry point for the vocegate voice gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocegate/vocegate/internal/config"
	"github.com/vocegate/vocegate/internal/gateway"
	"github.com/vocegate/vocegate/internal/health"
	"github.com/vocegate/vocegate/internal/modelservice"
	"github.com/vocegate/vocegate/internal/observe"
	"github.com/vocegate/vocegate/internal/toolkit"
	"github.com/vocegate/vocegate/internal/toolkit/mcpbridge"
	"github.com/vocegate/vocegate/internal/tools/datetimemath"
	"github.com/vocegate/vocegate/internal/tools/geocode"
	"github.com/vocegate/vocegate/internal/tools/rag"
	"github.com/vocegate/vocegate/internal/tools/reasoning"
	"github.com/vocegate/vocegate/internal/tools/weather"
	"github.com/vocegate/vocegate/internal/tools/wikipedia"
	"github.com/vocegate/vocegate/pkg/memory/postgres"
	"github.com/vocegate/vocegate/pkg/provider/embeddings"
	embeddingsollama "github.com/vocegate/vocegate/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/vocegate/vocegate/pkg/provider/embeddings/openai"
	"github.com/vocegate/vocegate/pkg/provider/llm"
	"github.com/vocegate/vocegate/pkg/provider/llm/anyllm"
	llmopenai "github.com/vocegate/vocegate/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocegate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocegate: %v\n", err)
		}
		return 1
	}
	config.ApplyEnvOverrides(cfg)

	// ── Logger ───────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vocegate starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocegate"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate the model-service provider ───────────────────────────────
	provider, err := reg.CreateModelService(cfg.ModelService)
	if err != nil {
		slog.Error("failed to build model service provider", "err", err)
		return 1
	}

	// ── Tool registry ─────────────────────────────────────────────────────────
	toolRegistry, err := buildTools(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build tool registry", "err", err)
		return 1
	}

	// ── Gateway ───────────────────────────────────────────────────────────────
	gwOpts := []gateway.Option{
		gateway.WithModelID(cfg.ModelService.Model),
		gateway.WithShutdownDeadline(time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second),
	}
	if regions := cfg.ModelService.Regions; len(regions) > 0 {
		gwOpts = append(gwOpts, gateway.WithRegion(regions[0]))
	}
	gw := gateway.New(provider, toolRegistry, gwOpts...)
	gw.Start(ctx)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	healthHandler := health.New(health.Checker{
		Name: "model_service",
		Check: func(context.Context) error {
			if len(provider.Regions()) == 0 {
				return fmt.Errorf("no reachable regions")
			}
			return nil
		},
	})
	healthHandler.Register(mux)
	health.RegisterDomain(mux,
		health.NewDomainHandler(gw, provider),
		health.NewToolsHandler(toolRegistry),
	)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", observe.Middleware(observe.DefaultMetrics())(http.HandlerFunc(gw.ServeHTTP)))

	printStartupSummary(cfg, toolRegistry, provider)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownDeadline := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the factory functions for every provider
// kind vocegate ships concretely. A config entry naming anything else
// surfaces config.ErrProviderNotRegistered at construction time.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterModelService("websocket", func(e config.ProviderEntry) (modelservice.Provider, error) {
		opts := []modelservice.Option{}
		if e.BaseURL != "" {
			opts = append(opts, modelservice.WithBaseURL(e.BaseURL))
		}
		if len(e.Regions) > 0 {
			opts = append(opts, modelservice.WithRegions(e.Regions))
		}
		return modelservice.New(e.APIKey, opts...), nil
	})

	// "openai" uses the official openai-go SDK directly rather than going
	// through any-llm-go's generic backend, since it is by far the most
	// commonly configured reasoning provider and benefits from the
	// dedicated client's typed request builders.
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})

	for _, name := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"} {
		name := name
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, e.Model, anyLLMOptions(e)...)
		})
	}

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		var opts []embeddingsopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(e.BaseURL))
		}
		return embeddingsopenai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embeddingsollama.New(baseURL, e.Model)
	})
}

// anyLLMOptions translates a config.ProviderEntry into any-llm-go options.
// Absent an explicit API key, any-llm-go falls back to the backend's usual
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func anyLLMOptions(e config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}

// buildTools assembles the toolkit.Registry from cfg.Tools, cfg.Memory, and
// cfg.MCP.Servers. Tools that are enabled but whose backing provider fails to
// construct abort startup with a descriptive error rather than registering a
// half-working tool.
func buildTools(ctx context.Context, cfg *config.Config, reg *config.Registry) (*toolkit.Registry, error) {
	tools := toolkit.NewRegistry()
	enabled := enabledSet(cfg.Tools.Enabled)

	if enabled("get_weather") {
		tools.Register(weather.New(nil))
	}
	if enabled("search_wikipedia") {
		tools.Register(wikipedia.New(nil))
	}
	if enabled("geocode_address") {
		tools.Register(geocode.New(nil))
	}
	if enabled("datetime_math") {
		tools.Register(datetimemath.Tool{})
	}

	if cfg.Tools.Reasoning.Name != "" && enabled("reason_about") {
		p, err := reg.CreateLLM(cfg.Tools.Reasoning)
		if err != nil {
			return nil, fmt.Errorf("reasoning provider %q: %w", cfg.Tools.Reasoning.Name, err)
		}
		tools.Register(reasoning.New(p))
	}

	if cfg.Memory.Embeddings.Name != "" && cfg.Memory.PostgresDSN != "" && enabled("search_knowledge_base") {
		embedder, err := reg.CreateEmbeddings(cfg.Memory.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("embeddings provider %q: %w", cfg.Memory.Embeddings.Name, err)
		}
		store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		tools.Register(rag.New(embedder, store.L2()))
	}

	for _, srv := range cfg.MCP.Servers {
		bridge := mcpbridge.New()
		err := bridge.Import(ctx, mcpbridge.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			Env:       srv.Env,
			URL:       srv.URL,
		}, tools)
		if err != nil {
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
	}

	return tools, nil
}

// enabledSet returns a membership test over names; a nil/empty names list
// means every tool is enabled, matching cfg.Tools.Enabled's documented
// "nil means all" semantics.
func enabledSet(names []string) func(string) bool {
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, tools *toolkit.Registry, provider modelservice.Provider) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         vocegate — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Model service", cfg.ModelService.Name)
	printField("Regions", fmt.Sprintf("%v", provider.Regions()))
	printField("Reasoning LLM", valueOrNone(cfg.Tools.Reasoning.Name))
	printField("Embeddings", valueOrNone(cfg.Memory.Embeddings.Name))
	fmt.Printf("║  Tools registered : %-18d ║\n", len(tools.Specs(nil)))
	fmt.Printf("║  MCP servers      : %-18d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func valueOrNone(v string) string {
	if v == "" {
		return "(not configured)"
	}
	return v
}

func printField(label, value string) {
	if len(value) > 18 {
		value = value[:15] + "…"
	}
	fmt.Printf("║  %-17s: %-18s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
