package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/control"
	"relaydesk/relay/pkg/history"
	"relaydesk/relay/pkg/history/recorder"
	"relaydesk/relay/pkg/history/retention"
	"relaydesk/relay/pkg/history/storage"
	"relaydesk/relay/pkg/proxy"
	"relaydesk/relay/pkg/proxy/middleware"
	"relaydesk/relay/pkg/server"
	"relaydesk/relay/pkg/telemetry/health"
	"relaydesk/relay/pkg/telemetry/logging"
	"relaydesk/relay/pkg/telemetry/metrics"
	"relaydesk/relay/pkg/telemetry/tracing"
)

// app is the wired relay process: the lifecycle manager plus everything
// that observes or drives it.
type app struct {
	cfg    *config.Config
	store  *config.Store
	logger *logging.Logger

	metrics *metrics.Collector
	tracer  *tracing.Tracer

	history   history.Storage
	recorder  *recorder.Recorder
	scheduler *retention.Scheduler

	manager *server.Manager
	control *control.Server
	watcher *config.Watcher

	watchWG sync.WaitGroup
}

// newApp builds every component from cfg without binding any port.
// path is the config file that PUT /v1/config and the watcher use.
func newApp(path string, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		store:  config.NewStore(path, cfg),
		logger: logger,
	}

	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracer = tracer

	var observers []server.Observer
	if cfg.History.Enabled {
		slog.Info("initializing lifecycle history", "backend", cfg.History.Backend)

		a.history, err = storage.New(&cfg.History)
		if err != nil {
			a.close(context.Background())
			return nil, fmt.Errorf("failed to create history storage: %w", err)
		}
		a.recorder = recorder.NewRecorder(a.history, &recorder.Config{
			AsyncBuffer: cfg.History.AsyncBuffer,
		}, a.metrics)
		observers = append(observers, a.recorder)

		pruner := retention.NewPruner(a.history, &retention.Config{
			RetentionDays: cfg.History.Retention.Days,
			MaxRecords:    cfg.History.Retention.MaxRecords,
			PruneSchedule: cfg.History.Retention.PruneSchedule,
		}, a.metrics)
		a.scheduler = retention.NewScheduler(pruner)
	}

	a.manager = server.NewManager(server.Options{
		BindAddress:       cfg.Server.BindAddress,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Forwarder: proxy.Options{
			MaxBodyBytes:    cfg.Forwarding.MaxBodyBytes,
			UpstreamTimeout: cfg.Forwarding.UpstreamTimeout,
			XForwarded:      cfg.Forwarding.XForwarded,
			Metrics:         a.metrics,
		},
		CORS:      convertCORSConfig(cfg.CORS),
		Metrics:   a.metrics,
		Observers: observers,
		Tracer:    a.tracer,
		Logger:    logger.Logger,
	})

	if cfg.Control.Enabled {
		checker := health.New(0)
		checker.RegisterCheck("upstream", a.manager.CheckUpstream)
		if a.history != nil {
			checker.RegisterCheck("history", a.history.Ping)
		}

		opts := control.Options{
			Address:   cfg.Control.ListenAddress,
			Lifecycle: a.manager,
			Config:    a.store,
			History:   a.history,
			Health:    checker,
			Version:   health.NewVersionInfo(Version, GitCommit, BuildDate),
			Logger:    logger.Logger,
		}
		if cfg.Telemetry.Metrics.Enabled {
			opts.Metrics = a.metrics.Handler()
		}
		a.control = control.NewServer(opts)
	}

	if cfg.Watch && path != "" {
		a.watcher, err = config.NewWatcher(path, config.WithWatcherLogger(logger.Logger))
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
	}

	return a, nil
}

// start brings the process up: control API, retention schedule, config
// watcher, then the proxy itself when autostart is set.
func (a *app) start(ctx context.Context, autostart bool) error {
	if a.control != nil {
		if err := a.control.Start(); err != nil {
			return err
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else if next := a.scheduler.NextRun(); next != nil {
			slog.Debug("history retention scheduled", "next_run", next)
		}
	}

	if a.watcher != nil {
		a.watchWG.Add(1)
		go func() {
			defer a.watchWG.Done()
			if err := a.watcher.Watch(ctx, a.reload); err != nil {
				slog.Error("config watcher failed", "error", err)
			}
		}()
	}

	if autostart {
		res := a.manager.Start(a.store.Proxy())
		if !res.Success {
			// The process stays up so the route can be fixed through the
			// control API.
			slog.Error("autostart failed", "error", res.Error)
		}
	}
	return nil
}

// reload applies a configuration file change: the log level, the saved
// route, and a restart when the running route differs.
func (a *app) reload(cfg *config.Config) {
	if err := a.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		slog.Warn("ignoring reloaded log level", "error", err)
	}

	prev := a.store.Get()
	next := *prev
	next.Proxy = cfg.Proxy
	next.Telemetry.Logging.Level = cfg.Telemetry.Logging.Level
	a.store.Replace(&next)

	st := a.manager.Status()
	if !st.IsRunning || *st.Config == cfg.Proxy.ProxyConfig {
		return
	}
	res := a.manager.Reconfigure(cfg.Proxy.ProxyConfig)
	if !res.Success {
		slog.Error("reconfigure after config reload failed", "error", res.Error)
	}
}

// close tears everything down in reverse dependency order. It is safe on a
// partially built app.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		a.watchWG.Wait()
	}
	if a.control != nil {
		if err := a.control.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("control API shutdown: %w", err))
		}
	}
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("proxy shutdown: %w", err))
		}
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history storage close: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func convertCORSConfig(c config.CORSConfig) *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          c.Enabled,
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		MaxAge:           c.MaxAge,
		AllowCredentials: c.AllowCredentials,
	}
}
