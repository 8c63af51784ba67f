// Package telemetry holds the Prometheus collector and the OpenTelemetry
// tracer provider used by the CLI.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "mqshim"

// Metrics records publish and delivery outcomes. It satisfies
// middleware.MetricsCollector.
type Metrics struct {
	Registry *prometheus.Registry

	published *prometheus.CounterVec
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the mqshim collectors on a fresh registry. Go
// runtime and process collectors are added when withRuntime is set.
func NewMetrics(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		Registry: reg,
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages published, by destination and outcome.",
		}, []string{"destination", "status"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Deliveries handled, by destination and outcome.",
		}, []string{"destination", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_processing_seconds",
			Help:      "Time spent in the delivery handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"destination"}),
	}
	reg.MustRegister(m.published, m.processed, m.duration)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// MessagePublished counts one publish attempt.
func (m *Metrics) MessagePublished(destination string, err error) {
	m.published.WithLabelValues(destination, status(err)).Inc()
}

// MessageProcessed counts one delivery and observes its handler time.
func (m *Metrics) MessageProcessed(destination string, d time.Duration, err error) {
	m.processed.WithLabelValues(destination, status(err)).Inc()
	m.duration.WithLabelValues(destination).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv  *http.Server
	log  *zap.Logger
	addr net.Addr
}

func NewServer(addr string, m *Metrics, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.log.Info("metrics server listening", zap.String("address", s.addr.String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
