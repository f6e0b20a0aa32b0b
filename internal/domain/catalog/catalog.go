// Package catalog defines the read model of stores and menus that pricing
// runs against. Persistence lives behind the Reader and Writer interfaces.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrItemNotFound is returned when a requested menu item does not exist.
	ErrItemNotFound = errors.New("menu item not found")
	// ErrStoreNotFound is returned when a requested store does not exist.
	ErrStoreNotFound = errors.New("store not found")
)

// MenuItem is an orderable dish. Variants and AddonGroups keep catalog order.
type MenuItem struct {
	ID          string
	StoreID     string
	CategoryID  string
	Name        string
	BasePrice   decimal.Decimal
	Available   bool
	Variants    []Variant
	AddonGroups []AddonGroup
}

// Variant is a mutually exclusive option of an item, e.g. a size.
type Variant struct {
	ID         string
	Name       string
	PriceDelta decimal.Decimal
	Default    bool
}

// AddonGroup bundles optional extras with a selection range.
type AddonGroup struct {
	ID       string
	Name     string
	Min      int
	Max      int
	Required bool
	Addons   []Addon
}

// Addon is a single optional extra.
type Addon struct {
	ID         string
	Name       string
	PriceDelta decimal.Decimal
	Available  bool
}

// Variant returns the variant with the given id.
func (m *MenuItem) Variant(id string) (Variant, bool) {
	for _, v := range m.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Addon returns the addon with the given id together with its group.
func (m *MenuItem) Addon(id string) (Addon, *AddonGroup, bool) {
	for i := range m.AddonGroups {
		g := &m.AddonGroups[i]
		for _, a := range g.Addons {
			if a.ID == id {
				return a, g, true
			}
		}
	}
	return Addon{}, nil, false
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// DeliveryZone is a flat-fee delivery area of a store.
type DeliveryZone struct {
	ID           string
	Name         string
	Fee          decimal.Decimal
	MinimumOrder decimal.Decimal
	RadiusKM     decimal.Decimal
	Center       Coordinate
}

// Store is the pricing context of a restaurant. Nil rates fall back to the
// platform defaults.
type Store struct {
	ID             string
	Name           string
	Active         bool
	TaxRate        *decimal.Decimal
	ServiceFeeRate *decimal.Decimal
	Zones          []DeliveryZone
}

// Reader resolves catalog entities by identifier.
type Reader interface {
	GetStore(ctx context.Context, id string) (*Store, error)
	// GetMenuItems returns the items of the store matching ids. Unknown ids are
	// omitted rather than reported.
	GetMenuItems(ctx context.Context, storeID string, ids []string) ([]MenuItem, error)
}

// Writer mutates catalog state owned by staff tooling.
type Writer interface {
	// SetItemAvailability updates the availability flag and returns the item.
	SetItemAvailability(ctx context.Context, itemID string, available bool) (*MenuItem, error)
}
