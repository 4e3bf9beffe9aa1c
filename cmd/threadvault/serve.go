package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/threadvault/threadvault/internal/channel/discord"
	"github.com/threadvault/threadvault/internal/config"
	"github.com/threadvault/threadvault/internal/handlers"
	"github.com/threadvault/threadvault/internal/ingest"
	"github.com/threadvault/threadvault/internal/logger"
	"github.com/threadvault/threadvault/internal/server"
	"github.com/threadvault/threadvault/internal/storage"
	s3store "github.com/threadvault/threadvault/internal/storage/providers/s3"
	"github.com/threadvault/threadvault/internal/sysmem"
	"github.com/threadvault/threadvault/internal/telemetry"
)

func runServe(cfgPath string) {
	fx.New(
		fx.Provide(
			provideConfig(cfgPath),
			provideLogger,
			provideStore,
			provideProber,
			provideTelemetry,
			provideGate,
			provideFolderResolver,
			provideDownloader,
			provideUploader,
			providePool,
			provideWatcher,
			provideService,
			providePingHandler,
			provideStatusHandler,
			provideServer,
		),
		fx.Invoke(
			startPipeline,
			startWatcher,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig(path string) func() (config.Config, error) {
	return func() (config.Config, error) {
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(log *slog.Logger, cfg config.Config) (storage.Store, error) {
	store, err := s3store.New(context.Background(), log, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func provideProber() sysmem.Prober {
	return sysmem.NewSystemProber()
}

func provideTelemetry(log *slog.Logger) telemetry.Reporter {
	return telemetry.NewLogReporter(log)
}

func provideGate(log *slog.Logger, cfg config.Config, prober sysmem.Prober) *ingest.Gate {
	return ingest.NewGate(log, cfg.Pipeline.MaxFileSizeBytes, cfg.Pipeline.MemoryReserve, prober)
}

func provideFolderResolver(log *slog.Logger, store storage.Store) *ingest.FolderResolver {
	return ingest.NewFolderResolver(log, store)
}

func retryPolicy(cfg config.Config) ingest.RetryPolicy {
	return ingest.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Multiplier:  cfg.Pipeline.BackoffMult,
		BaseDelay:   cfg.Pipeline.BaseDelayDuration(),
	}
}

func provideDownloader(log *slog.Logger, cfg config.Config) *ingest.Downloader {
	client := &http.Client{Timeout: 5 * time.Minute}
	return ingest.NewDownloader(log, client, retryPolicy(cfg), cfg.Pipeline.MaxFileSizeBytes, cfg.Pipeline.VideoInMemory)
}

func provideUploader(log *slog.Logger, cfg config.Config, store storage.Store) *ingest.Uploader {
	return ingest.NewUploader(log, store, retryPolicy(cfg))
}

func providePool(log *slog.Logger, cfg config.Config) *ingest.Pool {
	return ingest.NewPool(log, cfg.Pipeline.Workers, cfg.Pipeline.QueueDepth)
}

func provideWatcher(log *slog.Logger, cfg config.Config, resolver *ingest.FolderResolver) *discord.Watcher {
	return discord.NewWatcher(log, cfg.Discord, resolver)
}

func provideService(
	log *slog.Logger,
	cfg config.Config,
	gate *ingest.Gate,
	resolver *ingest.FolderResolver,
	downloader *ingest.Downloader,
	uploader *ingest.Uploader,
	pool *ingest.Pool,
	watcher *discord.Watcher,
	tel telemetry.Reporter,
) *ingest.Service {
	return ingest.NewService(log, gate, resolver, downloader, uploader, pool, watcher, tel, cfg.Pipeline.QueueDepth)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideStatusHandler(log *slog.Logger, svc *ingest.Service, prober sysmem.Prober) *handlers.StatusHandler {
	return handlers.NewStatusHandler(log, svc.Resolver(), prober)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, statusHandler *handlers.StatusHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, log, pingHandler, statusHandler)
}

func startPipeline(lc fx.Lifecycle, svc *ingest.Service, pool *ingest.Pool) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			svc.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			svc.Stop()
			pool.Close()
			return nil
		},
	})
}

func startWatcher(lc fx.Lifecycle, watcher *discord.Watcher, svc *ingest.Service) {
	watcher.SetSink(svc)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return watcher.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return watcher.Stop()
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			return srv.Shutdown()
		},
	})
}
