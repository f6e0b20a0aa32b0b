package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/catalog"
)

// Tax is a single tax line of a summary.
type Tax struct {
	Name   string
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Fee is a single fee line of a summary.
type Fee struct {
	Name   string
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Policy computes taxes and fees over a discounted subtotal.
type Policy interface {
	Apply(base decimal.Decimal) ([]Tax, []Fee)
}

// PolicyResolver selects the Policy of a store.
type PolicyResolver interface {
	PolicyFor(store *catalog.Store) Policy
}

// RatePolicy charges one percentage tax line and one percentage fee line.
// Rates are percentages, e.g. 8.75. A zero rate omits its line.
type RatePolicy struct {
	TaxName string
	TaxRate decimal.Decimal
	FeeName string
	FeeRate decimal.Decimal
}

// DefaultPolicy returns the platform fallback policy.
func DefaultPolicy() RatePolicy {
	return RatePolicy{
		TaxName: "Sales Tax",
		TaxRate: decimal.RequireFromString("8.75"),
		FeeName: "Service Fee",
		FeeRate: decimal.NewFromInt(3),
	}
}

var _ Policy = RatePolicy{}

// Apply rounds every line to cents on its own.
func (p RatePolicy) Apply(base decimal.Decimal) ([]Tax, []Fee) {
	var (
		taxes []Tax
		fees  []Fee
	)
	if !p.TaxRate.IsZero() {
		taxes = append(taxes, Tax{Name: p.TaxName, Rate: p.TaxRate, Amount: percentOf(base, p.TaxRate)})
	}
	if !p.FeeRate.IsZero() {
		fees = append(fees, Fee{Name: p.FeeName, Rate: p.FeeRate, Amount: percentOf(base, p.FeeRate)})
	}
	return taxes, fees
}

// StorePolicies resolves a RatePolicy from platform defaults and the store's
// own rate overrides.
type StorePolicies struct {
	Default RatePolicy
}

var _ PolicyResolver = StorePolicies{}

// PolicyFor returns the default policy with the store's overrides applied.
func (s StorePolicies) PolicyFor(store *catalog.Store) Policy {
	p := s.Default
	if store == nil {
		return p
	}
	if store.TaxRate != nil {
		p.TaxRate = *store.TaxRate
	}
	if store.ServiceFeeRate != nil {
		p.FeeRate = *store.ServiceFeeRate
	}
	return p
}

var hundred = decimal.NewFromInt(100)

func percentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred).Round(2)
}
