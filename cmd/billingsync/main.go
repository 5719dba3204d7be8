// Command billingsync serves the subscription billing API and the payment
// provider webhook.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingsync/pkg/async"
	core "github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/billing/pgstore"
	"github.com/dmitrymomot/billingsync/pkg/billing/stripe"
	"github.com/dmitrymomot/billingsync/pkg/clientip"
	"github.com/dmitrymomot/billingsync/pkg/config"
	"github.com/dmitrymomot/billingsync/pkg/email"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/identity"
	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/pg"
	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
	"github.com/dmitrymomot/billingsync/pkg/redis"
	"github.com/dmitrymomot/billingsync/pkg/requestid"
	billing "github.com/dmitrymomot/billingsync/svc/billing"
)

const serviceName = "billingsync"

type appConfig struct {
	Log      logger.Config
	Billing  core.Config
	Stripe   stripe.Config
	Postgres pg.Config
	Redis    redis.Config
	Email    email.Config
	HTTP     httpserver.Config
	Identity identity.Config
	ClientIP clientip.Config
	Service  billing.Config
}

func (c *appConfig) load() error {
	return errors.Join(
		config.Load(&c.Log),
		config.Load(&c.Billing),
		config.Load(&c.Stripe),
		config.Load(&c.Postgres),
		config.Load(&c.Redis),
		config.Load(&c.Email),
		config.Load(&c.HTTP),
		config.Load(&c.Identity),
		config.Load(&c.ClientIP),
		config.Load(&c.Service),
	)
}

func main() {
	if err := run(); err != nil {
		slog.Error("billingsync stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := cfg.load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(
		logger.FromConfig(cfg.Log, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, cfg.Postgres, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
		return err
	}
	store := pgstore.New(pool)

	metrics := billing.NewMetrics()

	stripeProvider, err := stripe.New(cfg.Stripe)
	if err != nil {
		return err
	}
	provider := billing.InstrumentProvider(stripeProvider, metrics)

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return err
	}
	if !cfg.Email.PostmarkEnabled() {
		log.Warn("postmark is not configured, emails are written to disk", slog.String("dir", cfg.Email.DevDir))
	}
	notifier := billing.InstrumentNotifier(
		email.NewNotifier(sender, cfg.Email, email.WithManageURL(cfg.Billing.DefaultReturnURL)),
		metrics,
	)

	runner := async.NewRunner(
		async.WithLogger(log),
		async.WithTaskTimeout(cfg.Billing.NotificationTimeout),
	)

	svc, err := core.NewService(cfg.Billing, store, provider,
		core.WithLogger(log),
		core.WithNotifier(notifier),
		core.WithRunner(runner),
	)
	if err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	var limitStore ratelimit.Store
	switch cfg.Service.RateLimitBackend {
	case billing.BackendRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer closeRedis(client, log)
		rs, err := ratelimit.NewRedisStore(client, ratelimit.WithKeyPrefix(serviceName+":ratelimit:"))
		if err != nil {
			return err
		}
		limitStore = rs
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	case billing.BackendMemory, "":
		limitStore = ratelimit.NewMemoryStore()
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.Service.RateLimitBackend)
	}

	guard, err := ratelimit.NewGuard(limitStore, cfg.Service.Rules())
	if err != nil {
		return err
	}
	verifier, err := identity.NewVerifier(cfg.Identity)
	if err != nil {
		return err
	}
	resolver, err := clientip.NewResolver(cfg.ClientIP)
	if err != nil {
		return err
	}

	handler := billing.NewHandler(cfg.Service, svc, verifier, guard,
		billing.WithLogger(log),
		billing.WithMetrics(metrics),
	)
	router := billing.NewRouter(handler, billing.RouterConfig{
		ClientIP:      resolver,
		Metrics:       metrics,
		Logger:        log,
		HealthTimeout: cfg.Service.HealthTimeout,
		Checks:        checks,
	})

	server := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook("async-runner", runner.Shutdown),
	)
	janitor := billing.NewJanitor(store, cfg.Service.EventRetention, cfg.Service.PruneInterval, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, router) })
	g.Go(func() error { return janitor.Run(ctx) })

	log.Info("billingsync started", slog.String("addr", cfg.HTTP.Addr))
	return g.Wait()
}

func closeRedis(client *goredis.Client, log *slog.Logger) {
	if err := client.Close(); err != nil {
		log.Error("close redis client", logger.Error(err))
	}
}
