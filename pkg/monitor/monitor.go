package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatelink-dev/gatelink/pkg/hub"
)

// Source is the view of a hub session the monitor serves. *hub.Session
// satisfies it.
type Source interface {
	HubID() string
	State() hub.State
	Devices() hub.DeviceTree
	Metrics() hub.SessionMetrics
}

// Config configures the monitor server.
type Config struct {
	// Addr is the listen address as host:port.
	// Default: ":8480"
	Addr string

	// Namespace is the Prometheus metrics namespace.
	// Default: "gatelink"
	Namespace string

	// Registry collects the session metrics. It must also implement
	// prometheus.Gatherer for the /metrics endpoint.
	// Default: a fresh prometheus.NewRegistry()
	Registry *prometheus.Registry

	// Logger receives request and feed diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server serves the monitor endpoints for one session.
type Server struct {
	src    Source
	cfg    Config
	router chi.Router
	feed   *feed
	logger *slog.Logger
}

// NewServer creates a monitor server observing src.
func NewServer(src Source, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8480"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "gatelink"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		src:    src,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "monitor"),
		feed:   newFeed(cfg.Logger),
	}
	registerSessionMetrics(cfg.Registry, cfg.Namespace, src)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/devices", s.handleDevices)
	r.Get("/devices/{deviceID}", s.handleDevice)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		cfg.Registry, promhttp.HandlerOpts{}))
	r.Get("/feed", s.feed.handleUpgrade)

	s.router = r
	return s
}

// Handler returns the monitor's HTTP handler, for callers that mount it
// on their own server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleDelta forwards a session delta to every feed subscriber. It is
// shaped as a hub.DeltaHandler so callers can chain it into theirs.
func (s *Server) HandleDelta(d hub.Delta) {
	s.feed.broadcast(d)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("monitor listening", "addr", s.cfg.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.feed.closeAll()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status string `json:"status"`
	Hub    string `json:"hub,omitempty"`
	State  string `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Hub:    s.src.HubID(),
		State:  s.src.State().String(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.src.Devices())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	dev, ok := s.src.Devices()[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown device " + id,
		})
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}
