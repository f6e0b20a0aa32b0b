package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcart/internal/domain/catalog"
)

func TestRatePolicy_ScenarioC(t *testing.T) {
	taxes, fees := DefaultPolicy().Apply(d("24.30"))

	require.Len(t, taxes, 1)
	require.Len(t, fees, 1)
	assert.Equal(t, "Sales Tax", taxes[0].Name)
	assert.Equal(t, "2.13", taxes[0].Amount.StringFixed(2))
	assert.Equal(t, "Service Fee", fees[0].Name)
	assert.Equal(t, "0.73", fees[0].Amount.StringFixed(2))
}

func TestRatePolicy_RoundsEachLine(t *testing.T) {
	p := RatePolicy{TaxName: "Tax", TaxRate: d("5"), FeeName: "Fee", FeeRate: d("5")}

	// 0.10 * 5% = 0.005 on each line; the aggregate would be 0.01.
	taxes, fees := p.Apply(d("0.10"))
	assert.Equal(t, "0.01", taxes[0].Amount.StringFixed(2))
	assert.Equal(t, "0.01", fees[0].Amount.StringFixed(2))
}

func TestRatePolicy_ZeroRateOmitsLine(t *testing.T) {
	p := RatePolicy{TaxName: "Tax", TaxRate: d("10")}

	taxes, fees := p.Apply(d("10"))
	require.Len(t, taxes, 1)
	assert.Empty(t, fees)
}

func TestRatePolicy_ZeroBase(t *testing.T) {
	taxes, fees := DefaultPolicy().Apply(decimal.Zero)
	assert.True(t, taxes[0].Amount.IsZero())
	assert.True(t, fees[0].Amount.IsZero())
}

func TestStorePolicies_Overrides(t *testing.T) {
	sp := StorePolicies{Default: DefaultPolicy()}
	tax := d("10")
	fee := decimal.Zero

	p := sp.PolicyFor(&catalog.Store{ID: "s1", TaxRate: &tax, ServiceFeeRate: &fee})
	taxes, fees := p.Apply(d("20"))
	require.Len(t, taxes, 1)
	assert.Equal(t, "2.00", taxes[0].Amount.StringFixed(2))
	assert.Equal(t, "Sales Tax", taxes[0].Name)
	assert.Empty(t, fees)

	assert.Equal(t, DefaultPolicy(), sp.PolicyFor(&catalog.Store{ID: "s2"}))
	assert.Equal(t, DefaultPolicy(), sp.PolicyFor(nil))
}
