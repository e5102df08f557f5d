// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks, plus the Prometheus collectors the fabric hooks feed.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the proxy is ready; wired to the
// upstream mud connection state.
type ReadinessChecker func() bool

// Metrics are the proxy's Prometheus collectors. They are fed through
// the hook options the fabric subsystems expose.
type Metrics struct {
	// LinesTotal counts delivered lines by direction ("mud", "client").
	LinesTotal *prometheus.CounterVec
	// EventsTotal counts event raises.
	EventsTotal prometheus.Counter
	// TriggerFires counts trigger events raised.
	TriggerFires prometheus.Counter
	// TimerFires counts scheduler fires by timer name.
	TimerFires *prometheus.CounterVec
	// CommandsTotal counts dispatched commands by plugin and name.
	CommandsTotal *prometheus.CounterVec
	// ClientsConnected tracks the current client count.
	ClientsConnected prometheus.Gauge
}

// NewMetrics creates and registers the proxy's collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_lines_total",
				Help: "Total lines delivered by direction",
			},
			[]string{"direction"},
		),
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prism_events_raised_total",
			Help: "Total event raises on the bus",
		}),
		TriggerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prism_trigger_fires_total",
			Help: "Total trigger events raised",
		}),
		TimerFires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_timer_fires_total",
				Help: "Total scheduler fires by timer",
			},
			[]string{"timer"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_commands_total",
				Help: "Total dispatched commands by plugin and name",
			},
			[]string{"plugin", "command"},
		),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prism_clients_connected",
			Help: "Currently connected clients",
		}),
	}
	reg.MustRegister(
		m.LinesTotal,
		m.EventsTotal,
		m.TriggerFires,
		m.TimerFires,
		m.CommandsTotal,
		m.ClientsConnected,
	)
	return m
}

// Server provides HTTP endpoints for metrics and health probes.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server on addr ("host:port").
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the collectors for hook wiring.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel reports server failures
// and closes on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n")) //nolint:errcheck
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready\n")) //nolint:errcheck
}
