package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/trendwatch/pkg/auth"
	"github.com/dmitrymomot/trendwatch/pkg/channels"
	"github.com/dmitrymomot/trendwatch/pkg/config"
	"github.com/dmitrymomot/trendwatch/pkg/eventqueue"
	"github.com/dmitrymomot/trendwatch/pkg/gate"
	"github.com/dmitrymomot/trendwatch/pkg/httpserver"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/pipeline"
	"github.com/dmitrymomot/trendwatch/pkg/rules"
	storagepg "github.com/dmitrymomot/trendwatch/pkg/storage/pg"
	storageredis "github.com/dmitrymomot/trendwatch/pkg/storage/redis"
	"github.com/dmitrymomot/trendwatch/pkg/transport/sse"
	"github.com/dmitrymomot/trendwatch/pkg/window"
)

type appConfig struct {
	LogLevel  string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	// Storage selects where events and notifications are persisted:
	// "memory" for development, "postgres" for real deployments.
	Storage string `env:"STORAGE_DRIVER" envDefault:"memory"`

	// Counters selects the windowed counter backend: "memory" keeps rule
	// state per instance, "redis" shares it across instances.
	Counters string `env:"COUNTER_BACKEND" envDefault:"memory"`

	// RuleCatalogPath points at an optional YAML file retuning the
	// built-in rules.
	RuleCatalogPath string `env:"RULE_CATALOG_PATH"`

	// AuthSigningKey enables token authentication when set; without it
	// every connection is anonymous.
	AuthSigningKey string        `env:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `env:"AUTH_ISSUER" envDefault:"trendwatch"`
	AuthTokenTTL   time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithLevel(parseLevel(cfg.LogLevel)),
		logger.WithFormat(cfg.LogFormat),
		logger.WithAttr(slog.String("service", "trendwatch")),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	var queueCfg eventqueue.Config
	if err := config.Load(&queueCfg); err != nil {
		return err
	}
	var gateCfg gate.Config
	if err := config.Load(&gateCfg); err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg.RuleCatalogPath)
	if err != nil {
		return err
	}

	deps, healthz, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	transport := sse.NewTransport()
	deps.Transport = transport

	p, err := pipeline.New(pipeline.Config{
		Queue:   queueCfg,
		Gate:    gateCfg,
		Catalog: catalog,
	}, deps, pipeline.WithLogger(log))
	if err != nil {
		return err
	}

	var tokens *auth.TokenService
	if cfg.AuthSigningKey != "" {
		tokens, err = auth.NewTokenService(cfg.AuthSigningKey,
			auth.WithIssuer(cfg.AuthIssuer),
			auth.WithTTL(cfg.AuthTokenTTL),
		)
		if err != nil {
			return err
		}
	}

	api := newAPI(p, deps.Notifications, tokens, log)
	router := api.router(sse.NewHandler(transport, p, sse.WithLogger(log)), healthz)

	srv := httpserver.New(httpCfg, router, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()

		// Detach streams first so the HTTP server can drain, then flush
		// whatever the queue still buffers.
		transport.CloseAll()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return p.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildDeps assembles the storage-dependent pipeline inputs plus the
// health probes and a cleanup function for whatever was opened.
func buildDeps(ctx context.Context, cfg appConfig, log *slog.Logger) (pipeline.Deps, []func(context.Context) error, func(), error) {
	deps := pipeline.Deps{}
	var (
		probes   []func(context.Context) error
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	switch cfg.Storage {
	case "postgres":
		var pgCfg storagepg.Config
		if err := config.Load(&pgCfg); err != nil {
			return deps, nil, cleanup, err
		}
		pool, err := storagepg.Connect(ctx, pgCfg)
		if err != nil {
			return deps, nil, cleanup, err
		}
		cleanups = append(cleanups, pool.Close)
		if err := storagepg.EnsureSchema(ctx, pool); err != nil {
			cleanup()
			return deps, nil, func() {}, err
		}
		deps.Events = storagepg.NewEventStore(pool)
		deps.Notifications = storagepg.NewNotificationStore(pool)
		probes = append(probes, storagepg.Healthcheck(pool))
		log.Info("using postgres storage")

	case "memory":
		deps.Events = newMemoryEventStore(0)
		deps.Notifications = notification.NewMemoryStore()
		log.Info("using in-memory storage")

	default:
		return deps, nil, cleanup, errors.New("unknown STORAGE_DRIVER: " + cfg.Storage)
	}

	switch cfg.Counters {
	case "redis":
		var redisCfg storageredis.Config
		if err := config.Load(&redisCfg); err != nil {
			return deps, nil, cleanup, err
		}
		client, err := storageredis.Connect(ctx, redisCfg)
		if err != nil {
			cleanup()
			return deps, nil, func() {}, err
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		deps.Counters = storageredis.NewCounterStore(client,
			storageredis.WithKeyPrefix(redisCfg.KeyPrefix+"counter:"))
		probes = append(probes, storageredis.Healthcheck(client))
		log.Info("using redis counters")

	case "memory":
		counters := window.NewMemoryCounter()
		cleanups = append(cleanups, counters.Close)
		deps.Counters = counters
		log.Info("using in-memory counters")

	default:
		cleanup()
		return deps, nil, func() {}, errors.New("unknown COUNTER_BACKEND: " + cfg.Counters)
	}

	return deps, probes, cleanup, nil
}

// loadCatalog reads the optional rules catalog file, falling back to the
// built-in defaults.
func loadCatalog(path string) (rules.Catalog, error) {
	if path == "" {
		return rules.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return rules.Catalog{}, err
	}
	defer f.Close()
	return rules.LoadCatalog(f)
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// channelsHint is referenced by the API docs endpoint so operators can
// discover the channel namespace without reading source.
var channelsHint = []string{
	channels.AdminChannel,
	channels.AnalyticsChannel,
	channels.AnalyticsSearch,
	channels.AnalyticsFilters,
	channels.AnalyticsListings,
	channels.AnalyticsSessions,
}
