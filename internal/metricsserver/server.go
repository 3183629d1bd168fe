// Package metricsserver exposes the process's Prometheus registry and
// a liveness probe over HTTP, routed through gorilla/mux.
package metricsserver

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves /metrics and /healthz. A zero-value addr means the
// server is disabled and Start is a no-op.
type Server struct {
	addr   string
	http   *http.Server
	logger *logrus.Logger
}

// New builds a Server that scrapes gatherer. If addr is empty, the
// returned Server's Start does nothing.
func New(addr string, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if addr == "" {
		return &Server{logger: logger}
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		addr: addr,
		http: &http.Server{
			Addr:    addr,
			Handler: r,
		},
		logger: logger,
	}
}

// Start launches the HTTP listener in a background goroutine. Safe to
// call on a disabled Server.
func (s *Server) Start() {
	if s.http == nil {
		return
	}
	s.logger.WithField("addr", s.addr).Info("starting metrics server")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()
}

// Stop gracefully shuts the server down, if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
