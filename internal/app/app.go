// Package app wires configuration, logging, telemetry and the broker
// Service into an fx application.
package app

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/miladsoleymani/mqshim/broker"
	"github.com/miladsoleymani/mqshim/core"
	"github.com/miladsoleymani/mqshim/core/middleware"
	"github.com/miladsoleymani/mqshim/internal/config"
	"github.com/miladsoleymani/mqshim/internal/logging"
	"github.com/miladsoleymani/mqshim/internal/telemetry"

	// Register the broker backends.
	_ "github.com/miladsoleymani/mqshim/plugins/kafka"
	_ "github.com/miladsoleymani/mqshim/plugins/nats"
	_ "github.com/miladsoleymani/mqshim/plugins/rabbitmq"
)

// Module builds the object graph from the config directory dir.
func Module(dir string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Settings, error) { return config.Load(dir) },
			NewLogger,
			NewMetrics,
			NewTracerProvider,
			NewDialer,
			NewService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
	)
}

// NewLogger builds the process logger and flushes it on stop.
func NewLogger(lc fx.Lifecycle, cfg *config.Settings) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Sync on a terminal stderr reports EINVAL; nothing to act on.
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

// NewMetrics creates the collector and, when enabled, the /metrics server.
func NewMetrics(lc fx.Lifecycle, cfg *config.Settings, log *zap.Logger) *telemetry.Metrics {
	m := telemetry.NewMetrics(cfg.Metrics.Enabled)
	if cfg.Metrics.Enabled {
		srv := telemetry.NewServer(cfg.Metrics.Address, m, log)
		lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
	}
	return m
}

// NewTracerProvider returns the OTLP provider, or a no-op one when tracing
// is off, and shuts it down on stop.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Settings) (trace.TracerProvider, error) {
	tp, shutdown, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return tp, nil
}

// NewDialer resolves the configured backend from the registry.
func NewDialer(cfg *config.Settings) (core.Dialer, error) {
	return broker.Create(cfg.Broker.Type, cfg.BrokerConfig())
}

// NewService creates the lazy Service with the delivery middleware chain
// and closes it on stop. No connection is made here.
func NewService(lc fx.Lifecycle, d core.Dialer, log *zap.Logger, tp trace.TracerProvider, m *telemetry.Metrics) *core.Service {
	prop := propagation.TraceContext{}
	s := core.New(d,
		core.WithLogger(log.Named("service")),
		core.WithTracerProvider(tp),
		core.WithPropagator(prop),
	)
	s.Use(
		middleware.Recovery(log),
		middleware.Tracing(tp, prop),
		middleware.Metrics(m),
		middleware.Logging(log),
	)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s
}
