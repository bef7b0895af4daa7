package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/goodvibes-bookings/internal/confirm"
	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/http/handlers"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/platform/mailer"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/internal/repo/filestore"
	"github.com/diagnosis/goodvibes-bookings/internal/repo/postgres"
	"github.com/diagnosis/goodvibes-bookings/internal/service"
	"github.com/diagnosis/goodvibes-bookings/pkg/config"
	"github.com/diagnosis/goodvibes-bookings/pkg/database"
	"github.com/diagnosis/goodvibes-bookings/pkg/events"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
	mw "github.com/diagnosis/goodvibes-bookings/pkg/middleware"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Bookings service error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	catalog := domain.DefaultCatalog()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	h := hub.New(cfg.Hub.Buffer, m)
	defer h.Close()

	// Connect to event bus
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer bus.Close()
		h.AddSink(hub.NewBusSink(bus, h.Origin()))
		if err := hub.Relay(h, bus); err != nil {
			return err
		}
		logger.Info("Relaying booking events over NATS", "url", cfg.NATS.URL, "origin", h.Origin())
	}

	limiter, closeLimiter, err := openLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	dispatcher := confirm.New(openMailer(cfg), catalog, m,
		confirm.WithQueueSize(cfg.Email.QueueSize),
		confirm.WithTimeout(cfg.Email.Timeout),
		confirm.WithRetry(uint(max(cfg.Email.MaxTries, 1)), nil),
	)
	bookings := service.NewBookingService(store, intake.NewNormalizer(catalog), catalog, h, dispatcher, m)

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: handlers.NewRouter(handlers.RouterDeps{
			Bookings: bookings,
			Confirm:  dispatcher,
			Hub:      h,
			Metrics:  m,
			Limiter:  limiter,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		logger.Info("Starting bookings service", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down bookings service...")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.Close()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (repo.BookingStore, func(), error) {
	policy, ok := repo.ParseOverlapPolicy(cfg.Store.OverlapPolicy)
	if !ok {
		logger.Warn("Unknown overlap policy, using advisory", "policy", cfg.Store.OverlapPolicy)
		policy = repo.PolicyAdvisory
	}

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
		if err != nil {
			return nil, nil, err
		}
		r := postgres.NewBookingRepo(pool, policy)
		if err := r.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Using postgres booking store", "policy", policy)
		return r, pool.Close, nil
	default:
		s := filestore.New(cfg.Store.Path,
			filestore.WithPolicy(policy),
			filestore.WithWriteRetry(uint(max(cfg.Store.WriteTries, 1)), func() backoff.BackOff {
				b := backoff.NewExponentialBackOff()
				b.InitialInterval = 50 * time.Millisecond
				b.MaxInterval = time.Second
				return b
			}),
		)
		logger.Info("Using file booking store", "path", s.Path(), "policy", policy)
		return s, func() {}, nil
	}
}

// openLimiter prefers Redis so that every instance shares one window; without it each process
// counts on its own.
func openLimiter(ctx context.Context, cfg *config.Config) (mw.Limiter, func(), error) {
	if cfg.Redis.URL == "" {
		return mw.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, rate limiter will fail open until it recovers", "error", err)
	}
	return mw.NewRedisLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window), func() { rdb.Close() }, nil
}

func openMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		logger.Info("Email dev mode, confirmations are logged only")
		return mailer.DevMailer{}
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.From)
	case cfg.Email.SMTPHost != "":
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	default:
		logger.Warn("No email provider configured, confirmations are simulated")
		return mailer.DevMailer{}
	}
}
