package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecheck/internal/analysis"
	"github.com/MrWong99/voicecheck/internal/config"
	"github.com/MrWong99/voicecheck/internal/health"
	"github.com/MrWong99/voicecheck/internal/observe"
)

// ListenCmd runs the live analyzer.
type ListenCmd struct {
	Source string        `short:"s" help:"Frame source (arecord, ffmpeg, file, auto). Overrides source.name."`
	Device string        `short:"d" help:"Capture device ID or name substring. Overrides source.device."`
	File   string        `type:"existingfile" help:"Analyse a WAV file in real time instead of capturing."`
	Mode   analysis.Mode `short:"m" help:"Analysis mode (db, rms, adaptive_noise). Overrides analysis.mode."`
	Addr   string        `help:"Listen address for /metrics and health endpoints; \"off\" disables it. Overrides server.listen_addr." placeholder:"HOST:PORT"`
	Quiet  bool          `short:"q" help:"Do not draw the console status line."`
}

// apply returns a copy of cfg with the command-line overrides applied.
func (c *ListenCmd) apply(cfg *config.Config) *config.Config {
	out := *cfg
	if c.File != "" {
		out.Source.Name = config.SourceFile
		out.Source.Path = c.File
		out.Source.Realtime = true
	}
	if c.Source != "" {
		out.Source.Name = c.Source
	}
	if c.Device != "" {
		out.Source.Device = c.Device
	}
	if c.Mode != "" {
		out.Analysis.Mode = c.Mode
	}
	switch c.Addr {
	case "":
	case "off":
		out.Server.ListenAddr = ""
	default:
		out.Server.ListenAddr = c.Addr
	}
	return &out
}

// Run captures until interrupted, the source ends or the analyzer fails.
func (c *ListenCmd) Run(env *runEnv) error {
	ctx, cancel := context.WithCancel(env.ctx)
	defer cancel()

	var (
		cfg     *config.Config
		watcher *config.Watcher
		sup     *supervisor
	)
	if env.configPath != "" {
		w, err := config.NewWatcher(env.configPath, func(_, next *config.Config, diff config.ConfigDiff) {
			if diff.LogLevelChanged {
				env.logLevel.Set(diff.NewLogLevel.SlogLevel())
				slog.Info("voicecheck: log level changed", "level", diff.NewLogLevel)
			}
			if diff.RestartRequired() && sup != nil {
				sup.Reload(c.apply(next))
			}
		})
		if err != nil {
			return err
		}
		watcher = w
		cfg = w.Current()
	} else {
		cfg = config.Default()
	}
	cfg = c.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	env.logLevel.Set(cfg.Server.LogLevel.SlogLevel())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     reg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("voicecheck: telemetry shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	tracker := health.NewTracker()
	sinks := analysis.MultiSink{tracker}
	var console *consoleSink
	if !c.Quiet {
		console = newConsoleSink(os.Stdout, cfg.Analysis.ToAnalysis().Mode)
		async := analysis.NewAsyncSink(console)
		defer console.Finish()
		defer async.Close()
		sinks = append(sinks, async)
	}

	sup = newSupervisor(config.NewDefaultRegistry(), metrics, sinks)
	sup.onReset = func(next *config.Config) {
		tracker.Reset()
		if console != nil {
			console.SetMode(next.Analysis.ToAnalysis().Mode)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return sup.Run(gctx, cfg)
	})

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg, reg, metrics, sup, tracker)
		g.Go(func() error {
			slog.Info("voicecheck: serving metrics and health", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)
			var err error
			if tls := cfg.Server.TLS; tls != nil {
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// newServer builds the HTTP server for /metrics, /healthz, /readyz and
// /status.
func newServer(cfg *config.Config, reg *prometheus.Registry, m *observe.Metrics, sup *supervisor, tracker *health.Tracker) *http.Server {
	acfg := cfg.Analysis.ToAnalysis()
	staleAfter := max(2*acfg.StallTimeout, 5*time.Second)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	health.New([]health.Checker{
		health.Func("analyzer", sup.Healthy),
		tracker.Checker(staleAfter),
	}, health.WithTracker(tracker)).Register(mux)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
