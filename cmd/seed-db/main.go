// Command seed-db loads the demo store, menu, coupons and a staff API key
// into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/repository"
	"github.com/xenking/foodcart/internal/seed"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or FOODCART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FOODCART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("FOODCART_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("FOODCART_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if apiKey == "" {
			return errors.New("API key is required: set --api-key or FOODCART_SEED_API_KEY")
		}
		if err := run(zctx.Base(ctx, lg), databaseURL, apiKey, apiKeyPepper); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	lg := zctx.From(ctx)
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	items := repository.NewCatalogRepository(pool)
	return seed.Demo(ctx, seed.Target{
		SaveStore:    items.SaveStore,
		SaveMenuItem: items.SaveMenuItem,
		SaveCoupon:   repository.NewCouponRepository(pool).Save,
		SaveAPIKey:   repository.NewAPIKeyRepository(pool).Save,
	}, []byte(pepper), apiKey)
}
