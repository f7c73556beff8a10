// Package metrics exposes runtime gauges and the Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/textstorm/internal/logging"
)

var (
	metricSnippets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "textstorm",
		Name:      "snippets_indexed",
		Help:      "Enabled snippets in the live trigger index.",
	})
	metricLocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "textstorm",
		Name:      "element_locks",
		Help:      "Element lock entries tracked, expired ones included.",
	})
	metricHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "textstorm",
		Name:      "hosts_attached",
		Help:      "Pages or terminals with a running controller.",
	})
	metricReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textstorm",
		Name:      "reloads_total",
		Help:      "Snippet index and settings reloads by source.",
	}, []string{"source"})
)

// SetSnippets records the size of the trigger index.
func SetSnippets(n int) { metricSnippets.Set(float64(n)) }

// SetLocks records the size of the lock table.
func SetLocks(n int) { metricLocks.Set(float64(n)) }

// HostAttached records a controller starting (+1) or stopping (-1).
func HostAttached(delta int) { metricHosts.Add(float64(delta)) }

// Reloaded counts a reload triggered by source ("store" or "settings").
func Reloaded(source string) { metricReloads.WithLabelValues(source).Inc() }

// shutdownTimeout bounds the graceful stop of the scrape server.
const shutdownTimeout = 5 * time.Second

// Server serves /metrics.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
}

// Listen binds addr. An empty addr is an error; callers skip the server
// when metrics are disabled.
func Listen(addr string, logger *logging.Logger) (*Server, error) {
	if addr == "" {
		return nil, errors.New("metrics: empty listen address")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger.WithComponent("metrics"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve runs until ctx is done and then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()
	s.logger.Info("serving metrics on %s", s.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
