package obshttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds how long Serve waits for in-flight requests to
// finish once ctx is cancelled, grounded on the teacher's HTTPTransport
// shutdown timeout.
const shutdownTimeout = 10 * time.Second

// Server is the admin/metrics HTTP listener: /healthz and /metrics only.
// No rule/limiter CRUD, no TLS, no push channel — those stay external
// collaborators per the Non-goals.
type Server struct {
	addr    string
	health  *HealthChecker
	metrics *Metrics
	logger  *slog.Logger

	server *http.Server
}

// NewServer builds a Server bound to addr (e.g. "127.0.0.1:8081") once
// Serve is called. health may be nil, in which case /healthz always
// reports healthy with no component checks.
func NewServer(addr string, health *HealthChecker, metrics *Metrics, logger *slog.Logger) *Server {
	return &Server{addr: addr, health: health, metrics: metrics, logger: logger}
}

// NewMetricsRegistry builds a Prometheus registry carrying the standard Go
// and process collectors alongside policyd's own metrics, grounded on the
// teacher's Start() registry setup in transport.go.
func NewMetricsRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// Serve binds the listener and serves /healthz and /metrics until ctx is
// cancelled, then shuts down gracefully with a bounded timeout.
func (s *Server) Serve(ctx context.Context, reg *prometheus.Registry) error {
	mux := http.NewServeMux()

	if s.health != nil {
		mux.Handle("/healthz", s.health.Handler())
	} else {
		mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("observability server listening", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during observability server shutdown", "error", err)
		return err
	}
	return nil
}
