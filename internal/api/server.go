// Package api exposes the ConvI HTTP surface: conversation analysis
// endpoints for both ingest paths, health and readiness probes, and the
// Prometheus metrics endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conviai/convi/internal/analysis"
	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/health"
	"github.com/conviai/convi/internal/observe"
	"github.com/conviai/convi/internal/speech"
)

// DefaultDomain is the knowledge domain assumed when a request does not name
// one.
const DefaultDomain = "financial_banking"

// defaultMaxUploadBytes caps audio uploads at 50 MiB.
const defaultMaxUploadBytes = 50 << 20

// Option is a functional option for Server.
type Option func(*Server)

// WithSpeechClient enables the audio ingest path. Without it the audio
// endpoint answers 503.
func WithSpeechClient(c *speech.Client) Option {
	return func(s *Server) {
		s.speech = c
	}
}

// WithAnalysisEngine enables LLM analysis of normalized conversations.
// Without it responses carry turns and dialogue but null findings.
func WithAnalysisEngine(e *analysis.Engine) Option {
	return func(s *Server) {
		s.engine = e
	}
}

// WithHealthCheckers registers readiness checkers evaluated by /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// WithDefaultDomain overrides [DefaultDomain] for requests without one.
func WithDefaultDomain(domain string) Option {
	return func(s *Server) {
		if domain != "" {
			s.defaultDomain = domain
		}
	}
}

// WithMetrics sets the metric instruments used by the handlers and the HTTP
// middleware. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxUploadBytes caps the accepted audio upload size. Defaults to 50 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// Server holds the wired pipeline behind the HTTP API. Construct with [New]
// and mount via [Server.Routes].
type Server struct {
	normalizer *conversation.Normalizer
	engine     *analysis.Engine
	speech     *speech.Client
	checkers   []health.Checker

	defaultDomain  string
	maxUploadBytes int64
	metrics        *observe.Metrics
	logger         *slog.Logger
}

// New creates a Server around the given normalizer. Analysis, speech ingest,
// and readiness checkers are attached via options.
func New(normalizer *conversation.Normalizer, opts ...Option) *Server {
	s := &Server{
		normalizer:     normalizer,
		defaultDomain:  DefaultDomain,
		maxUploadBytes: defaultMaxUploadBytes,
		metrics:        observe.DefaultMetrics(),
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the full handler tree, wrapped in the observability
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/analyze/text", s.handleAnalyzeText)
	mux.HandleFunc("POST /api/v1/analyze/audio", s.handleAnalyzeAudio)

	health.New(s.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}
