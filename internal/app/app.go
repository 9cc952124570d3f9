package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/events"
	"github.com/xenking/kart-checkout/internal/gateway/paypal"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/storage/journal"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/internal/storage/redislock"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const healthInterval = 10 * time.Second

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCount(10000),
	})

	fee, err := cfg.Checkout.Fee()
	if err != nil {
		return err
	}

	opts := []checkout.Option{
		checkout.WithTracerProvider(m.TracerProvider()),
		checkout.WithMeterProvider(m.MeterProvider()),
	}

	// Order store and saga journal.
	var store order.Store
	switch cfg.Store {
	case StoreMemory:
		lg.Warn("Using in-memory order store, orders are lost on restart")
		store = memory.NewOrderStore()
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.Register(health.Check{
			Name:    "postgres",
			Kind:    health.Readiness,
			Func:    health.Ping(pool),
			Timeout: 5 * time.Second,
		})

		db := journal.OpenFromPool(pool)
		defer func() { _ = db.Close() }()

		store = postgres.NewOrderStore(pool)
		opts = append(opts, checkout.WithJournal(journal.NewRecorder(db)))
	}

	// Capture lock: Redis when configured, otherwise in-process.
	if cfg.Redis.URL != "" {
		rdb, err := redislock.NewClient(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		lock := redislock.New(rdb, cfg.Checkout.LockTTL)
		healthSvc.Register(health.Check{
			Name: "redis",
			Kind: health.Readiness,
			Func: health.Ping(lock),
		})
		opts = append(opts, checkout.WithIntentLock(lock))
	} else {
		lg.Info("Redis not configured, capture lock is process-local")
	}

	// Domain events.
	if cfg.Events.AMQPURL != "" {
		pub, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect to broker")
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, checkout.WithPublisher(pub))
	}

	gateway, err := paypal.New(paypal.Options{
		BaseURL:        cfg.PayPal.BaseURL,
		ClientID:       cfg.PayPal.ClientID,
		ClientSecret:   cfg.PayPal.ClientSecret,
		BrandName:      cfg.PayPal.BrandName,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create paypal client")
	}

	svc, err := checkout.NewService(gateway, store, pricing.NewComputer(fee), checkout.Config{
		Currency:            cfg.PayPal.Currency,
		StepTimeout:         cfg.Checkout.StepTimeout,
		CompensationTimeout: cfg.Checkout.CompensationTimeout,
	}, opts...)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	// Router: health endpoints + API routes on one server.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{"Content-Type", handler.HeaderUserID, httpmiddleware.HeaderRequestID},
			MaxAge:       cfg.CORS.MaxAge,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests("/livez", "/readyz"),
	)
	r.Get("/livez", healthSvc.Live)
	r.Get("/readyz", healthSvc.Ready)
	handler.New(svc).Register(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Capture runs several sequential remote calls plus compensation.
		WriteTimeout:   cfg.Checkout.StepTimeout*4 + cfg.Checkout.CompensationTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: otelhttp.NewHandler(r,
			"kart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, healthInterval)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	healthSvc.SetReady(true)

	return g.Wait()
}
