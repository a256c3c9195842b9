// Command convi is the ConvI conversation intelligence server. It normalizes
// support-call transcripts from the text and audio ingest paths and analyzes
// them with an LLM grounded in domain knowledge.
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

	"github.com/conviai/convi/internal/analysis"
	"github.com/conviai/convi/internal/api"
	"github.com/conviai/convi/internal/config"
	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/health"
	"github.com/conviai/convi/internal/knowledge"
	"github.com/conviai/convi/internal/observe"
	"github.com/conviai/convi/internal/speech"
	"github.com/conviai/convi/pkg/provider/embeddings"
	mockembed "github.com/conviai/convi/pkg/provider/embeddings/mock"
	oaembed "github.com/conviai/convi/pkg/provider/embeddings/openai"
	"github.com/conviai/convi/pkg/provider/llm"
	mockllm "github.com/conviai/convi/pkg/provider/llm/mock"
	oaillm "github.com/conviai/convi/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "convi: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "convi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("convi starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "convi",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, embedder, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	var checkers []health.Checker

	// ── Knowledge retrieval ───────────────────────────────────────────────────
	var retriever knowledge.Retriever
	if dsn := cfg.Knowledge.PostgresDSN; dsn != "" && embedder != nil {
		store, err := knowledge.NewStore(ctx, dsn, embedder, cfg.Knowledge.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to connect to knowledge store", "err", err)
			return 1
		}
		defer store.Close()
		retriever = store
		checkers = append(checkers, health.Checker{Name: "database", Check: store.Ping})
		slog.Info("knowledge store connected", "embeddings_model", embedder.ModelID())
	} else {
		retriever = knowledge.NewLexical()
		slog.Warn("no vector store configured, falling back to in-memory lexical retrieval")
	}

	// ── Speech pipeline client ────────────────────────────────────────────────
	var speechClient *speech.Client
	if cfg.Speech.BaseURL != "" {
		var opts []speech.Option
		if cfg.Speech.TimeoutSeconds > 0 {
			opts = append(opts, speech.WithTimeout(time.Duration(cfg.Speech.TimeoutSeconds)*time.Second))
		}
		speechClient, err = speech.New(cfg.Speech.BaseURL, opts...)
		if err != nil {
			slog.Error("failed to create speech client", "err", err)
			return 1
		}
		checkers = append(checkers, health.Checker{Name: "speech_pipeline", Check: speechClient.Healthy})
		slog.Info("speech pipeline configured", "base_url", cfg.Speech.BaseURL)
	} else {
		slog.Warn("no speech pipeline configured, audio ingest disabled")
	}

	// ── Pipeline assembly ─────────────────────────────────────────────────────
	normalizer := conversation.New(conversation.WithMetrics(metrics))

	serverOpts := []api.Option{
		api.WithMetrics(metrics),
		api.WithHealthCheckers(checkers...),
	}
	if cfg.Analysis.DefaultDomain != "" {
		serverOpts = append(serverOpts, api.WithDefaultDomain(cfg.Analysis.DefaultDomain))
	}
	if speechClient != nil {
		serverOpts = append(serverOpts, api.WithSpeechClient(speechClient))
	}
	if llmProvider != nil {
		engineOpts := []analysis.Option{
			analysis.WithRetriever(retriever),
			analysis.WithMetrics(metrics),
		}
		if cfg.Knowledge.TopK > 0 {
			engineOpts = append(engineOpts, analysis.WithTopK(cfg.Knowledge.TopK))
		}
		serverOpts = append(serverOpts, api.WithAnalysisEngine(analysis.New(llmProvider, engineOpts...)))
	} else {
		slog.Warn("no LLM provider configured, analysis disabled")
	}

	server := api.New(normalizer, serverOpts...)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			slog.Info("listening with TLS", "addr", addr)
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// mockAnalysisResponse is the canned reply of the built-in mock LLM provider.
const mockAnalysisResponse = `{
	"conversation_summary": "Mock analysis: no real LLM provider is configured.",
	"customer_intention": "unknown",
	"call_outcome": "unknown",
	"risk_score": 0,
	"escalation_level": "none",
	"compliance_flags": [],
	"fraud_indicators": [],
	"performance_score": 5,
	"de_escalation_detected": false
}`

// registerBuiltinProviders wires the provider factories that ship with ConvI
// into reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// mock providers exist for local development without API keys. The canned
	// analysis keeps the full pipeline exercisable end to end.
	reg.RegisterLLM("mock", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &mockllm.Provider{
			Model:            entry.Model,
			CompleteResponse: &llm.CompletionResponse{Content: mockAnalysisResponse},
		}, nil
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		// Shortened outputs for text-embedding-3 models, to fit an existing
		// vector schema.
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("mock", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return &mockembed.Provider{ModelIDValue: entry.Model}, nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
// Either provider may be nil when not configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, embeddings.Provider, error) {
	var llmProvider llm.Provider
	var embedder embeddings.Provider

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		llmProvider = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", p.ModelID())
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		embedder = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", p.ModelID())
	}

	return llmProvider, embedder, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	n, ok := opts[key].(int)
	if !ok {
		return 0
	}
	return n
}
