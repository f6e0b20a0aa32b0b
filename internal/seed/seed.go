// Package seed loads a demo store, menu, coupon set and staff API key.
package seed

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
)

// DemoStoreID identifies the seeded store.
const DemoStoreID = "downtown"

// Target receives the seeded records. Both the PostgreSQL repositories and
// the in-memory store can serve as one.
type Target struct {
	SaveStore    func(ctx context.Context, s catalog.Store) error
	SaveMenuItem func(ctx context.Context, it catalog.MenuItem) error
	SaveCoupon   func(ctx context.Context, r coupon.Rule) error
	SaveAPIKey   func(ctx context.Context, k auth.APIKeyInfo) error
}

// Demo upserts the demo data set. The API key is skipped when apiKey is
// empty; otherwise it is stored hashed under pepper with every staff scope.
func Demo(ctx context.Context, t Target, pepper []byte, apiKey string) error {
	lg := zctx.From(ctx)

	store := Store()
	if err := t.SaveStore(ctx, store); err != nil {
		return errors.Wrapf(err, "save store %s", store.ID)
	}
	lg.Info("Upserted store", zap.String("id", store.ID), zap.Int("zones", len(store.Zones)))

	for _, it := range Menu() {
		if err := t.SaveMenuItem(ctx, it); err != nil {
			return errors.Wrapf(err, "save item %s", it.ID)
		}
		lg.Info("Upserted menu item", zap.String("id", it.ID), zap.String("name", it.Name))
	}

	for _, c := range Coupons() {
		if err := t.SaveCoupon(ctx, c); err != nil {
			return errors.Wrapf(err, "save coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}

	if apiKey == "" {
		return nil
	}
	k := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(pepper, apiKey),
		Name:    "Default staff key",
		Scopes:  []string{auth.ScopeOrdersManage, auth.ScopeOrdersOverride, auth.ScopeCatalogManage},
	}
	if err := t.SaveAPIKey(ctx, k); err != nil {
		return errors.Wrap(err, "save api key")
	}
	lg.Info("Upserted API key", zap.String("id", k.ID), zap.Strings("scopes", k.Scopes))
	return nil
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Store returns the demo store with a near and a far delivery zone.
func Store() catalog.Store {
	return catalog.Store{
		ID:     DemoStoreID,
		Name:   "Downtown Kitchen",
		Active: true,
		Zones: []catalog.DeliveryZone{
			{
				ID: "central", Name: "Central", Fee: money("3.99"), MinimumOrder: money("15.00"),
				RadiusKM: money("3"), Center: catalog.Coordinate{Lat: 40.7128, Lng: -74.0060},
			},
			{
				ID: "outer", Name: "Outer boroughs", Fee: money("6.99"), MinimumOrder: money("25.00"),
				RadiusKM: money("10"), Center: catalog.Coordinate{Lat: 40.7128, Lng: -74.0060},
			},
		},
	}
}

// Menu returns the demo menu.
func Menu() []catalog.MenuItem {
	sizes := []catalog.Variant{
		{ID: "small", Name: "Small 10\"", PriceDelta: decimal.Zero},
		{ID: "medium", Name: "Medium 12\"", PriceDelta: money("3.00"), Default: true},
		{ID: "large", Name: "Large 14\"", PriceDelta: money("5.50")},
	}
	toppings := catalog.AddonGroup{
		ID: "toppings", Name: "Extra toppings", Max: 5,
		Addons: []catalog.Addon{
			{ID: "mushrooms", Name: "Mushrooms", PriceDelta: money("1.25"), Available: true},
			{ID: "olives", Name: "Olives", PriceDelta: money("1.00"), Available: true},
			{ID: "pepperoni", Name: "Pepperoni", PriceDelta: money("1.75"), Available: true},
			{ID: "truffle", Name: "Truffle oil", PriceDelta: money("3.50"), Available: false},
		},
	}
	return []catalog.MenuItem{
		{
			ID: "margherita", StoreID: DemoStoreID, CategoryID: "pizza", Name: "Margherita",
			BasePrice: money("11.00"), Available: true,
			Variants: sizes, AddonGroups: []catalog.AddonGroup{toppings},
		},
		{
			ID: "diavola", StoreID: DemoStoreID, CategoryID: "pizza", Name: "Diavola",
			BasePrice: money("13.50"), Available: true,
			Variants: sizes, AddonGroups: []catalog.AddonGroup{toppings},
		},
		{
			ID: "cheeseburger", StoreID: DemoStoreID, CategoryID: "burgers", Name: "Cheeseburger",
			BasePrice: money("9.75"), Available: true,
			Variants: []catalog.Variant{
				{ID: "single", Name: "Single patty", Default: true},
				{ID: "double", Name: "Double patty", PriceDelta: money("3.25")},
			},
			AddonGroups: []catalog.AddonGroup{
				{
					ID: "sauce", Name: "Sauce", Min: 1, Max: 1, Required: true,
					Addons: []catalog.Addon{
						{ID: "ketchup", Name: "Ketchup", PriceDelta: decimal.Zero, Available: true},
						{ID: "bbq", Name: "BBQ", PriceDelta: money("0.50"), Available: true},
					},
				},
				{
					ID: "extras", Name: "Extras", Max: 3,
					Addons: []catalog.Addon{
						{ID: "bacon", Name: "Bacon", PriceDelta: money("2.00"), Available: true},
						{ID: "egg", Name: "Fried egg", PriceDelta: money("1.50"), Available: true},
					},
				},
			},
		},
		{
			ID: "fries", StoreID: DemoStoreID, CategoryID: "sides", Name: "Fries",
			BasePrice: money("3.95"), Available: true,
		},
		{
			ID: "lemonade", StoreID: DemoStoreID, CategoryID: "drinks", Name: "Lemonade",
			BasePrice: money("2.50"), Available: true,
		},
		{
			ID: "tiramisu", StoreID: DemoStoreID, CategoryID: "desserts", Name: "Tiramisu",
			BasePrice: money("6.00"), Available: false,
		},
	}
}

// Coupons returns the demo coupons.
func Coupons() []coupon.Rule {
	pizzaCap := money("8.00")
	return []coupon.Rule{
		{
			Code: "WELCOME10", Kind: coupon.KindPercent, Value: money("10"),
			Description: "10% off your first order", MinSubtotal: money("15.00"),
			PerUserLimit: 1, Active: true,
		},
		{
			Code: "FIVEOFF", Kind: coupon.KindFixed, Value: money("5.00"),
			Description: "5.00 off orders over 30.00", MinSubtotal: money("30.00"),
			MaxUses: 500, Active: true,
		},
		{
			Code: "PIZZA20", Kind: coupon.KindPercent, Value: money("20"),
			Description: "20% off pizzas, up to 8.00", MaxDiscount: &pizzaCap,
			StoreIDs: []string{DemoStoreID}, CategoryIDs: []string{"pizza"}, Active: true,
		},
	}
}
