// Package app wires the monitor, its stores and the HTTP adapter into one
// fx application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/httpapi"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
	"github.com/hamed0406/pingwatch/internal/registry"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/repo/badgerstore"
	"github.com/hamed0406/pingwatch/internal/repo/file"
	"github.com/hamed0406/pingwatch/internal/repo/memory"
	"github.com/hamed0406/pingwatch/internal/repo/postgres"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

// Options returns the whole application graph.
func Options(cfg config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Supply(cfg, log),
		fx.Provide(
			provideClock,
			provideRegistry,
			provideMetrics,
			provideTargets,
			provideStore,
			provideProber,
			provideFanOut,
			provideSender,
			provideBroadcaster,
			provideMonitor,
			provideHTTPServer,
		),
		fx.Invoke(registerMonitor, registerHTTP),
	)
}

func provideClock() clock.Clock { return clock.New() }

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) }

func provideTargets(cfg config.Config) *registry.Registry { return registry.New(cfg.TargetsFile) }

func provideStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	var (
		s   repo.Store
		err error
	)
	switch cfg.StateBackend {
	case "memory":
		s = memory.New()
	case "file":
		s, err = file.New(cfg.StateDir)
	case "badger":
		s, err = badgerstore.Open(filepath.Join(cfg.StateDir, "pingwatch.badger"), log)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var pg *postgres.Store
		pg, err = postgres.New(ctx, cfg.DatabaseURL, log)
		if err == nil {
			if err = pg.Migrate(ctx); err != nil {
				pg.Close()
			}
		}
		s = pg
	default:
		err = fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StateBackend, err)
	}
	log.Info("store_opened", zap.String("backend", cfg.StateBackend), zap.String("dir", cfg.StateDir))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}

func provideProber() probe.Prober { return probe.NewPingProber() }

func provideFanOut(log *zap.Logger, p probe.Prober, m *metrics.Metrics, cfg config.Config) *scheduler.FanOut {
	return scheduler.NewFanOut(log, p, m, cfg.ProbeConcurrency)
}

func provideSender(cfg config.Config, log *zap.Logger) notify.Sender {
	var r notify.Router
	if tg := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramAPIBase); tg != nil {
		r.Telegram = tg
	} else {
		log.Warn("telegram_disabled", zap.String("reason", "TELEGRAM_BOT_TOKEN empty"))
	}
	if sl := notify.NewSlack(cfg.SlackWebhookURL); sl != nil {
		r.Slack = sl
	}
	return r
}

func provideBroadcaster(log *zap.Logger, s notify.Sender, store repo.Store, clk clock.Clock, m *metrics.Metrics, cfg config.Config) *notify.Broadcaster {
	return notify.NewBroadcaster(log, s, store, clk, m, notify.Options{
		SenderName:  cfg.SenderName,
		Attempts:    cfg.NotifyAttempts,
		Backoff:     cfg.NotifyBackoff,
		Parallelism: cfg.NotifyParallelism,
	})
}

type monitorParams struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Targets  *registry.Registry
	Store    repo.Store
	FanOut   *scheduler.FanOut
	Notifier *notify.Broadcaster
}

func provideMonitor(p monitorParams) (*monitor.Monitor, error) {
	opts := monitor.Options{
		ProbeTimeout:   p.Config.ProbeTimeout,
		FirstTickDelay: p.Config.FirstTickDelay,
		Location:       p.Config.DigestLocation(),
	}
	if p.Config.DigestEnabled() {
		h, m, err := config.ParseClock(p.Config.DigestAt)
		if err != nil {
			return nil, err
		}
		opts.Digest = &scheduler.Daily{Hour: h, Minute: m, Loc: opts.Location}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return monitor.New(ctx, p.Log, p.Clock, p.Metrics, p.Targets, p.Store, p.FanOut, p.Notifier, opts)
}

func provideHTTPServer(cfg config.Config, log *zap.Logger, mon *monitor.Monitor, reg *prometheus.Registry) *http.Server {
	api := httpapi.NewServer(log, mon, reg)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, httpapi.Limits{PublicRPM: cfg.PublicRPM, PublicBurst: cfg.PublicBurst}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerMonitor(lc fx.Lifecycle, mon *monitor.Monitor) {
	lc.Append(fx.Hook{
		OnStart: mon.Start,
		OnStop:  mon.Stop,
	})
}

func registerHTTP(lc fx.Lifecycle, srv *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			log.Info("api_listen", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("api_serve_failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
