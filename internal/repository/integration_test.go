//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
	"github.com/xenking/foodcart/internal/repository"
	"github.com/xenking/foodcart/internal/seed"
)

var pool *pgxpool.Pool

var pepper = []byte("integration-pepper")

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "foodcart",
				"POSTGRES_PASSWORD": "foodcart",
				"POSTGRES_DB":       "foodcart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = c.Terminate(context.Background()) }()

	host, err := c.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mapped port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://foodcart:foodcart@%s:%s/foodcart?sslmode=disable", host, port.Port())
	if pool, err = repository.NewPool(ctx, dsn); err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	items := repository.NewCatalogRepository(pool)
	if err := seed.Demo(ctx, seed.Target{
		SaveStore:    items.SaveStore,
		SaveMenuItem: items.SaveMenuItem,
		SaveCoupon:   repository.NewCouponRepository(pool).Save,
		SaveAPIKey:   repository.NewAPIKeyRepository(pool).Save,
	}, pepper, "integration-key"); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		return 1
	}
	return m.Run()
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(pool)

	store, err := repo.GetStore(ctx, seed.DemoStoreID)
	require.NoError(t, err)
	assert.Equal(t, "Downtown Kitchen", store.Name)
	require.Len(t, store.Zones, 2)
	assert.Equal(t, "3.99", store.Zones[0].Fee.StringFixed(2))
	assert.Nil(t, store.TaxRate)

	_, err = repo.GetStore(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrStoreNotFound)

	got, err := repo.GetMenuItems(ctx, seed.DemoStoreID, []string{"margherita", "cheeseburger", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	byID := map[string]catalog.MenuItem{}
	for _, it := range got {
		byID[it.ID] = it
	}
	pizza := byID["margherita"]
	require.Len(t, pizza.Variants, 3)
	v, ok := pizza.Variant("large")
	require.True(t, ok)
	assert.Equal(t, "5.50", v.PriceDelta.StringFixed(2))
	a, g, ok := pizza.Addon("truffle")
	require.True(t, ok)
	assert.False(t, a.Available)
	assert.Equal(t, "toppings", g.ID)

	burger := byID["cheeseburger"]
	require.Len(t, burger.AddonGroups, 2)
	assert.True(t, burger.AddonGroups[0].Required)

	it, err := repo.SetItemAvailability(ctx, "fries", false)
	require.NoError(t, err)
	assert.False(t, it.Available)
	it, err = repo.SetItemAvailability(ctx, "fries", true)
	require.NoError(t, err)
	assert.True(t, it.Available)

	_, err = repo.SetItemAvailability(ctx, "ghost", true)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}

func TestCouponRepository_ConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCouponRepository(pool)
	require.NoError(t, repo.Save(ctx, coupon.Rule{
		Code: "race7", Kind: coupon.KindFixed, Value: decimal.NewFromInt(1), MaxUses: 7, Active: true,
	}))

	var (
		g         errgroup.Group
		succeeded atomic.Int32
	)
	for i := range 50 {
		g.Go(func() error {
			err := repo.Redeem(ctx, "RACE7", fmt.Sprintf("user-%d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, coupon.ErrExhausted):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(7), succeeded.Load())

	r, err := repo.FindByCode(ctx, "race7")
	require.NoError(t, err)
	assert.Equal(t, 7, r.UsedCount)
}

func TestCouponRepository_PerUserLimitAndRelease(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCouponRepository(pool)
	require.NoError(t, repo.Save(ctx, coupon.Rule{
		Code: "ONCE", Kind: coupon.KindPercent, Value: decimal.NewFromInt(10), PerUserLimit: 1, Active: true,
	}))

	require.NoError(t, repo.Redeem(ctx, "ONCE", "alice"))
	assert.ErrorIs(t, repo.Redeem(ctx, "ONCE", "alice"), coupon.ErrExhausted)
	require.NoError(t, repo.Redeem(ctx, "ONCE", "bob"))
	require.NoError(t, repo.Redeem(ctx, "ONCE", ""))

	n, err := repo.CountUserRedemptions(ctx, "once", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A failed per-user increment must not leave the global counter raised.
	r, err := repo.FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 3, r.UsedCount)

	require.NoError(t, repo.Release(ctx, "ONCE", "alice"))
	n, err = repo.CountUserRedemptions(ctx, "ONCE", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, repo.Redeem(ctx, "ONCE", "alice"))

	assert.ErrorIs(t, repo.Redeem(ctx, "NOSUCH", ""), coupon.ErrExhausted)
	_, err = repo.FindByCode(ctx, "NOSUCH")
	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func newOrderService(t *testing.T) *order.Service {
	t.Helper()
	signer, err := integrity.NewSigner([]byte("integration-signing-key"))
	require.NoError(t, err)
	coupons := repository.NewCouponRepository(pool)
	calc, err := pricing.NewCalculator(pricing.Params{
		Catalog:  repository.NewCatalogRepository(pool),
		Coupons:  coupon.NewResolver(coupons),
		Policies: pricing.StorePolicies{Default: pricing.DefaultPolicy()},
		Delivery: pricing.DeliveryResolver{Unmatched: pricing.UnmatchedZoneReject},
		Signer:   signer,
	})
	require.NoError(t, err)
	orders := repository.NewOrderRepository(pool)
	svc, err := order.NewService(calc, signer, coupons, orders, orders, nopPublisher{})
	require.NoError(t, err)
	return svc
}

func TestOrderRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		Cart: pricing.Request{
			StoreID: seed.DemoStoreID,
			Lines: []pricing.CartLine{
				{ItemID: "margherita", Quantity: 2, VariantID: "medium", AddonIDs: []string{"olives"}},
			},
			DeliveryMethod: pricing.DeliveryPickup,
			CouponCode:     "pizza20",
			UserID:         "user-42",
		},
		Tip:     decimal.RequireFromString("2.00"),
		Payment: []byte(`{"provider":"test","ref":"abc"}`),
		Note:    "ring twice",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-\d{6}$`, placed.Number)

	got, err := svc.Get(ctx, placed.Number)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)
	assert.True(t, placed.Pricing.Total.Equal(got.Pricing.Total))
	assert.Equal(t, placed.Pricing.Signature, got.Pricing.Signature)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Margherita", got.Items[0].Name)
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, "ring twice", got.Timeline[0].Note)
	assert.JSONEq(t, `{"provider":"test","ref":"abc"}`, string(got.Payment))

	for _, s := range []order.Status{order.StatusConfirmed, order.StatusPreparing, order.StatusReady} {
		_, err = svc.UpdateStatus(ctx, placed.Number, s, "kitchen", "", false)
		require.NoError(t, err, s)
	}
	_, err = svc.UpdateStatus(ctx, placed.Number, order.StatusDelivered, "kitchen", "", false)
	var transition *order.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	eta := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	assigned, err := svc.Assign(ctx, placed.Number, order.Assignment{HandlerID: "cook-1", EstimatedReadyAt: &eta})
	require.NoError(t, err)
	assert.Equal(t, "cook-1", assigned.HandlerID)
	assert.True(t, eta.Equal(*assigned.EstimatedReadyAt))
	require.NotNil(t, assigned.ActualReadyAt)

	got, err = svc.Get(ctx, placed.Number)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, got.Status)
	require.Len(t, got.Timeline, 4)
	assert.Equal(t, order.StatusReady, got.Timeline[3].Status)

	_, err = svc.Get(ctx, "ORD-999999")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_AppendStatusConflict(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)
	repo := repository.NewOrderRepository(pool)

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		Cart: pricing.Request{
			StoreID:        seed.DemoStoreID,
			Lines:          []pricing.CartLine{{ItemID: "fries", Quantity: 1}},
			DeliveryMethod: pricing.DeliveryPickup,
		},
		Guest: &order.GuestContact{Name: "Ada", Phone: "+15550100"},
	})
	require.NoError(t, err)

	lc := order.NewLifecycle()
	confirmed, err := lc.Transition(placed, order.StatusConfirmed, "a", "")
	require.NoError(t, err)
	cancelled, err := lc.Transition(placed, order.StatusCancelled, "b", "")
	require.NoError(t, err)

	require.NoError(t, repo.AppendStatus(ctx, order.StatusPending, confirmed))
	assert.ErrorIs(t, repo.AppendStatus(ctx, order.StatusPending, cancelled), order.ErrConflict)

	got, err := repo.GetByNumber(ctx, placed.Number)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Len(t, got.Timeline, 2)
	require.NotNil(t, got.Guest)
	assert.Equal(t, "Ada", got.Guest.Name)
}

func TestOrderRepository_SameStatusOverrideConflict(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)
	repo := repository.NewOrderRepository(pool)

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		Cart: pricing.Request{
			StoreID:        seed.DemoStoreID,
			Lines:          []pricing.CartLine{{ItemID: "fries", Quantity: 1}},
			DeliveryMethod: pricing.DeliveryPickup,
		},
		Guest: &order.GuestContact{Name: "Ada", Phone: "+15550100"},
	})
	require.NoError(t, err)

	lc := order.NewLifecycle()
	ready, err := lc.Override(placed, order.StatusReady, "admin", "")
	require.NoError(t, err)
	require.NoError(t, repo.AppendStatus(ctx, order.StatusPending, ready))

	// Both writers saw the same ready order; the second must not reach the
	// timeline key as a raw database error.
	first, err := lc.Override(ready, order.StatusReady, "a", "again")
	require.NoError(t, err)
	second, err := lc.Override(ready, order.StatusReady, "b", "again")
	require.NoError(t, err)

	require.NoError(t, repo.AppendStatus(ctx, order.StatusReady, first))
	assert.ErrorIs(t, repo.AppendStatus(ctx, order.StatusReady, second), order.ErrConflict)

	got, err := repo.GetByNumber(ctx, placed.Number)
	require.NoError(t, err)
	require.Len(t, got.Timeline, 3)
	assert.Equal(t, "a", got.Timeline[2].Actor)
}

func TestOrderRepository_SequenceIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewOrderRepository(pool)

	seen := make(chan int64, 40)
	var g errgroup.Group
	for range 40 {
		g.Go(func() error {
			n, err := repo.NextOrderNumber(ctx)
			seen <- n
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(seen)
	uniq := map[int64]bool{}
	for n := range seen {
		assert.False(t, uniq[n], "duplicate %d", n)
		uniq[n] = true
	}
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAPIKeyRepository(pool)

	k, err := repo.FindByHash(ctx, auth.HashKey(pepper, "integration-key"))
	require.NoError(t, err)
	assert.True(t, k.HasScope(auth.ScopeCatalogManage))

	_, err = repo.FindByHash(ctx, auth.HashKey(pepper, "wrong"))
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

// --- Mock implementations ---

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, []byte) {}
