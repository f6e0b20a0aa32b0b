package integrity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleTotals() Totals {
	return Totals{
		Subtotal:    d("27.00"),
		Discount:    d("2.70"),
		Tax:         d("2.13"),
		Fee:         d("0.73"),
		DeliveryFee: d("5.00"),
		Total:       d("32.16"),
	}
}

func TestNewSigner_EmptyKey(t *testing.T) {
	_, err := NewSigner(nil)
	require.Error(t, err)
}

func TestSigner_RoundTrip(t *testing.T) {
	s, err := NewSigner([]byte("secret"))
	require.NoError(t, err)

	tt := sampleTotals()
	sig := s.Sign(tt)
	require.NotEmpty(t, sig)
	assert.NoError(t, s.Verify(tt, sig))
}

func TestSigner_OneCentMutation(t *testing.T) {
	s, err := NewSigner([]byte("secret"))
	require.NoError(t, err)

	base := sampleTotals()
	sig := s.Sign(base)
	cent := d("0.01")

	mutations := map[string]func(t *Totals){
		"subtotal":     func(t *Totals) { t.Subtotal = t.Subtotal.Add(cent) },
		"discount":     func(t *Totals) { t.Discount = t.Discount.Sub(cent) },
		"tax":          func(t *Totals) { t.Tax = t.Tax.Add(cent) },
		"fee":          func(t *Totals) { t.Fee = t.Fee.Add(cent) },
		"delivery fee": func(t *Totals) { t.DeliveryFee = t.DeliveryFee.Sub(cent) },
		"total":        func(t *Totals) { t.Total = t.Total.Sub(cent) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := base
			mutate(&mutated)
			assert.ErrorIs(t, s.Verify(mutated, sig), ErrMismatch)
		})
	}
}

func TestSigner_DifferentKey(t *testing.T) {
	a, err := NewSigner([]byte("key-a"))
	require.NoError(t, err)
	b, err := NewSigner([]byte("key-b"))
	require.NoError(t, err)

	sig := a.Sign(sampleTotals())
	assert.ErrorIs(t, b.Verify(sampleTotals(), sig), ErrMismatch)
}

func TestSigner_MalformedSignature(t *testing.T) {
	s, err := NewSigner([]byte("secret"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(sampleTotals(), "not-hex"), ErrMismatch)
	assert.ErrorIs(t, s.Verify(sampleTotals(), ""), ErrMismatch)
}

func TestCanonical_ScaleInsensitive(t *testing.T) {
	a := sampleTotals()
	b := sampleTotals()
	b.Subtotal = d("27")
	b.DeliveryFee = d("5.000")

	assert.Equal(t, Canonical(a), Canonical(b))
	assert.Equal(t,
		"deliveryFee=5.00\ndiscount=2.70\nfee=0.73\nsubtotal=27.00\ntax=2.13\ntotal=32.16\n",
		string(Canonical(a)),
	)
}
