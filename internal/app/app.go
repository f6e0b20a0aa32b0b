package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
	"github.com/xenking/foodcart/internal/handler"
	"github.com/xenking/foodcart/internal/notify"
	"github.com/xenking/foodcart/internal/repository"
	"github.com/xenking/foodcart/internal/repository/memstore"
	"github.com/xenking/foodcart/internal/seed"
	"github.com/xenking/foodcart/pkg/health"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

// collaborators are the storage-backed dependencies of the domain services.
type collaborators struct {
	catalog interface {
		catalog.Reader
		catalog.Writer
	}
	coupons interface {
		coupon.Repository
		coupon.Redeemer
	}
	orders interface {
		order.Repository
		order.Sequence
	}
	keys auth.Repository
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))
	ctx = zctx.Base(ctx, lg)

	probe := health.New()
	probe.Add(health.Check{
		Name:    "goroutines",
		Kind:    health.Liveness,
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})

	var (
		deps collaborators
		pool *pgxpool.Pool
	)
	switch cfg.Storage {
	case StoragePostgres:
		var err error
		if pool, err = repository.NewPool(ctx, cfg.DatabaseURL); err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := repository.Migrate(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		probe.Add(health.Check{
			Name:    "postgres",
			Kind:    health.Readiness,
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(pool),
		})
		deps = collaborators{
			catalog: repository.NewCatalogRepository(pool),
			coupons: repository.NewCouponRepository(pool),
			orders:  repository.NewOrderRepository(pool),
			keys:    repository.NewAPIKeyRepository(pool),
		}
	case StorageMemory:
		mem := memstore.New()
		if err := seed.Demo(ctx, seed.Target{
			SaveStore:    mem.SaveStore,
			SaveMenuItem: mem.SaveMenuItem,
			SaveCoupon:   mem.SaveCoupon,
			SaveAPIKey:   mem.SaveAPIKey,
		}, []byte(cfg.APIKeyPepper), cfg.SeedAPIKey); err != nil {
			return errors.Wrap(err, "seed memory store")
		}
		deps = collaborators{catalog: mem, coupons: mem, orders: mem, keys: mem}
	}

	// Events: the hub serves local subscribers. With postgres events every
	// replica publishes through NOTIFY and relays what it hears into its hub.
	g, gctx := errgroup.WithContext(ctx)
	hub := notify.NewHub(cfg.Events.HubBuffer)
	publisher := notify.Multi{hub, notify.Log{}}
	if cfg.Events.Postgres {
		pg := notify.NewPGNotifier(pool, cfg.Events.Queue, hub)
		publisher = notify.Multi{pg, notify.Log{}}
		g.Go(func() error { return pg.Run(gctx) })
		g.Go(func() error { return notify.Listen(gctx, pool, hub) })
		probe.Add(health.Check{
			Name:    "notify_backlog",
			Kind:    health.Readiness,
			Timeout: time.Second,
			Func:    health.BacklogCheck(pg.Backlog, cfg.Events.Queue*3/4),
		})
	}

	// Domain services.
	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return errors.Wrap(err, "pricing policy")
	}
	unmatched, err := pricing.ParseUnmatchedZone(cfg.Pricing.UnmatchedZone)
	if err != nil {
		return errors.Wrap(err, "pricing")
	}
	signer, err := integrity.NewSigner([]byte(cfg.Pricing.SigningKey))
	if err != nil {
		return errors.Wrap(err, "create signer")
	}
	calc, err := pricing.NewCalculator(pricing.Params{
		Catalog:  deps.catalog,
		Coupons:  coupon.NewResolver(deps.coupons),
		Policies: pricing.StorePolicies{Default: policy},
		Delivery: pricing.DeliveryResolver{Unmatched: unmatched},
		Engine:   pricing.Engine{EnforceAddonLimits: cfg.Pricing.EnforceAddonLimits},
		Signer:   signer,
	},
		pricing.WithTracerProvider(m.TracerProvider()),
		pricing.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create calculator")
	}
	orders, err := order.NewService(calc, signer, deps.coupons, deps.orders, deps.orders, publisher,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	h := handler.New(handler.Params{
		Pricer:       calc,
		Orders:       orders,
		Availability: catalog.NewAvailabilityService(deps.catalog, publisher),
		Events:       hub,
		Auth:         handler.NewAuthenticator(deps.keys, []byte(cfg.APIKeyPepper)),
	})

	probe.Start(gctx, 10*time.Second)
	probe.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.Handle("/livez", probe.Handler(health.Liveness))
	mux.Handle("/readyz", probe.Handler(health.Readiness))
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "foodcart-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				Headers:          []string{"Content-Type", "Authorization", handler.HeaderAPIKey, handler.HeaderUserID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Location"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(gctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		probe.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		// Event streams never finish on their own.
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		probe.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
