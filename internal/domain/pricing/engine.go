// Package pricing turns cart lines into a signed price breakdown.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/catalog"
)

// CartLine is a single requested item with its selected modifiers.
type CartLine struct {
	ItemID       string
	Quantity     int
	VariantID    string
	AddonIDs     []string
	Instructions string
}

// PricedAddon is an addon resolved against the catalog.
type PricedAddon struct {
	ID         string
	Name       string
	PriceDelta decimal.Decimal
}

// PricedLine is a CartLine enriched with catalog names and prices.
type PricedLine struct {
	CartLine
	Name        string
	CategoryID  string
	VariantName string
	Addons      []PricedAddon
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Engine prices cart lines against a catalog snapshot. It has no side
// effects and is safe for concurrent use.
type Engine struct {
	// EnforceAddonLimits rejects selections that violate an addon group's
	// min, max or required constraints.
	EnforceAddonLimits bool
}

// Price resolves every line against items, keyed by item id, and returns the
// priced lines with their subtotal summed in line order.
func (e Engine) Price(lines []CartLine, items map[string]catalog.MenuItem) ([]PricedLine, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, invalid("items", "at least one item is required")
	}

	priced := make([]PricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		pl, err := e.priceLine(i, line, items)
		if err != nil {
			return nil, decimal.Zero, err
		}
		priced = append(priced, pl)
		subtotal = subtotal.Add(pl.LineTotal)
	}
	return priced, subtotal, nil
}

// MaxQuantity is the largest quantity a single cart line accepts.
const MaxQuantity = 999

func (e Engine) priceLine(i int, line CartLine, items map[string]catalog.MenuItem) (PricedLine, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

	if line.Quantity < 1 || line.Quantity > MaxQuantity {
		return PricedLine{}, invalid(field("quantity"), "must be between 1 and %d", MaxQuantity)
	}
	item, ok := items[line.ItemID]
	if !ok {
		return PricedLine{}, &NotFoundError{Kind: "item", ID: line.ItemID}
	}
	if !item.Available {
		return PricedLine{}, &UnavailableError{Kind: "item", ID: item.ID}
	}

	pl := PricedLine{
		CartLine:   line,
		Name:       item.Name,
		CategoryID: item.CategoryID,
	}
	unit := item.BasePrice

	// The item's default variant is informational; no delta without an explicit id.
	if line.VariantID != "" {
		v, ok := item.Variant(line.VariantID)
		if !ok {
			return PricedLine{}, invalid(field("selectedVariant"), "unknown variant %q", line.VariantID)
		}
		pl.VariantName = v.Name
		unit = unit.Add(v.PriceDelta)
	}

	seen := make(map[string]struct{}, len(line.AddonIDs))
	perGroup := make(map[string]int, len(item.AddonGroups))
	for _, id := range line.AddonIDs {
		if _, dup := seen[id]; dup {
			return PricedLine{}, invalid(field("selectedAddons"), "addon %q selected twice", id)
		}
		seen[id] = struct{}{}

		a, g, ok := item.Addon(id)
		if !ok {
			return PricedLine{}, invalid(field("selectedAddons"), "unknown addon %q", id)
		}
		if !a.Available {
			return PricedLine{}, invalid(field("selectedAddons"), "addon %q is unavailable", id)
		}
		perGroup[g.ID]++
		pl.Addons = append(pl.Addons, PricedAddon{ID: a.ID, Name: a.Name, PriceDelta: a.PriceDelta})
		unit = unit.Add(a.PriceDelta)
	}

	if e.EnforceAddonLimits {
		if err := checkAddonLimits(field("selectedAddons"), item.AddonGroups, perGroup); err != nil {
			return PricedLine{}, err
		}
	}

	if unit.IsNegative() {
		return PricedLine{}, invalid(field("unitPrice"), "modifiers make the unit price negative (%s)", unit.StringFixed(2))
	}

	pl.UnitPrice = unit
	pl.LineTotal = unit.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
	return pl, nil
}

func checkAddonLimits(field string, groups []catalog.AddonGroup, selected map[string]int) error {
	for _, g := range groups {
		n := selected[g.ID]
		lo := g.Min
		if g.Required && lo < 1 {
			lo = 1
		}
		if n < lo {
			return invalid(field, "group %q needs at least %d selections", g.Name, lo)
		}
		if g.Max > 0 && n > g.Max {
			return invalid(field, "group %q allows at most %d selections", g.Name, g.Max)
		}
	}
	return nil
}
