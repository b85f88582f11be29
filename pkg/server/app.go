package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketSignal/pkg/config"
	xhttp "MarketSignal/pkg/http"
	pkgkafka "MarketSignal/pkg/kafka"
	applogger "MarketSignal/pkg/logger"
)

// Closer is an infrastructure resource released on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// Runner is a background component started with the app.
type Runner interface {
	Start() error
	Stop(ctx context.Context) error
}

type namedRunner struct {
	name string
	r    Runner
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	runners     []namedRunner
	closers     []Closer
}

// New creates a new App. consumer and kh may be nil when Kafka is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpHandler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{
		cfg:         cfg,
		l:           l,
		httpHandler: httpHandler,
		consumer:    consumer,
		kh:          kh,
	}
}

// OnClose registers a resource to release after the servers stop. Resources
// close in reverse registration order.
func (a *App) OnClose(name string, fn func() error) {
	if fn == nil {
		return
	}
	a.closers = append(a.closers, Closer{Name: name, Close: fn})
}

// AddRunner registers a background component. Runners start after the Kafka
// consumer and stop before the closers run.
func (a *App) AddRunner(name string, r Runner) {
	if r == nil {
		return
	}
	a.runners = append(a.runners, namedRunner{name: name, r: r})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	a.l.Info("shutdown signal received")
	shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer done()
	return a.Shutdown(shutdownCtx)
}

// Start launches the HTTP server and, when configured, the Kafka consumer.
func (a *App) Start() error {
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		xhttp.WithServerLogger(a.l),
		xhttp.WithMetricsPath(metricsPath),
	)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	for _, nr := range a.runners {
		if err := nr.r.Start(); err != nil {
			a.l.Error("runner start error", applogger.String("runner", nr.name), applogger.Error(err))
			return err
		}
		a.l.Info("runner started", applogger.String("runner", nr.name))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("app started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// Shutdown stops intake first, then releases infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	start := time.Now()
	a.l.Info("shutting down")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for i := len(a.runners) - 1; i >= 0; i-- {
		nr := a.runners[i]
		if err := nr.r.Stop(ctx); err != nil {
			a.l.Warn("runner stop error", applogger.String("runner", nr.name), applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete", applogger.Duration("duration_ms", time.Since(start)))
	return nil
}
