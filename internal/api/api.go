// Package api serves the PostPipe HTTP API.
//
// It exposes endpoints for starting campaign sessions, supplying feedback,
// finalizing, one-shot generation, health and Prometheus metrics, and the Twilio
// webhook of the review channel.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/PostPipe/internal/flow"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// maxBodyBytes limits request bodies.
	maxBodyBytes = 1 << 20
)

// Notifier delivers session outcomes to a reviewer.
type Notifier interface {
	CanonicalizeReviewer(reviewer string) (string, error)
	Notify(ctx context.Context, reviewer, sessionID string, out flow.Outcome) error
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	Notifier        Notifier
	DefaultReviewer string
	Webhook         http.Handler
	Gatherer        prometheus.Gatherer
	Registerer      prometheus.Registerer
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithNotifier sends session outcomes to reviewers. Sessions created without a
// reviewer use defaultReviewer, which may be empty.
func WithNotifier(n Notifier, defaultReviewer string) Option {
	return func(o *Opts) {
		o.Notifier = n
		o.DefaultReviewer = defaultReviewer
	}
}

// WithTwilioWebhook mounts h at POST /twilio/webhook.
func WithTwilioWebhook(h http.Handler) Option {
	return func(o *Opts) { o.Webhook = h }
}

// WithMetrics serves GET /metrics from g and registers the HTTP collectors with r.
func WithMetrics(r prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *Opts) {
		o.Registerer = r
		o.Gatherer = g
	}
}

// Server is the PostPipe HTTP API.
type Server struct {
	sessions *flow.SessionManager
	opts     Opts
	handler  http.Handler
}

// NewServer creates a Server over a session manager.
func NewServer(sessions *flow.SessionManager, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{sessions: sessions, opts: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /campaigns", s.createCampaignHandler)
	mux.HandleFunc("GET /campaigns", s.listCampaignsHandler)
	mux.HandleFunc("GET /campaigns/{id}", s.getCampaignHandler)
	mux.HandleFunc("DELETE /campaigns/{id}", s.deleteCampaignHandler)
	mux.HandleFunc("POST /campaigns/{id}/feedback", s.feedbackHandler)
	mux.HandleFunc("POST /campaigns/{id}/finalize", s.finalizeHandler)
	mux.HandleFunc("POST /generate", s.generateHandler)
	if cfg.Webhook != nil {
		mux.Handle("POST /twilio/webhook", cfg.Webhook)
	}
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	s.handler = mux
	if cfg.Registerer != nil {
		h, err := instrument(mux, cfg.Registerer)
		if err != nil {
			return nil, err
		}
		s.handler = h
	}
	return s, nil
}

// instrument counts requests and observes their latency.
func instrument(next http.Handler, reg prometheus.Registerer) (http.Handler, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "postpipe",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "postpipe",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	for _, c := range []prometheus.Collector{requests, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.InstrumentHandlerDuration(duration,
		promhttp.InstrumentHandlerCounter(requests, next)), nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}
