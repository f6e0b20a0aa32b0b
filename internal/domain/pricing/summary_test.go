package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
)

func scenarioSummary() *CartSummary {
	return &CartSummary{
		Subtotal:    d("27.00"),
		Discounts:   []coupon.Discount{{Code: "SAVE10", Kind: coupon.KindPercent, Amount: d("2.70")}},
		Taxes:       []Tax{{Name: "Sales Tax", Rate: d("8.75"), Amount: d("2.13")}},
		Fees:        []Fee{{Name: "Service Fee", Rate: d("3"), Amount: d("0.73")}},
		DeliveryFee: d("5.00"),
		Tip:         d("0"),
		Total:       d("32.16"),
	}
}

func TestCartSummary_Reconciles(t *testing.T) {
	s := scenarioSummary()
	assert.Equal(t, "24.30", s.DiscountedSubtotal().StringFixed(2))
	assert.True(t, s.Reconciles())

	s.Total = d("32.17")
	assert.False(t, s.Reconciles())
}

func TestCartSummary_DiscountedSubtotalFloorsAtZero(t *testing.T) {
	s := &CartSummary{
		Subtotal:  d("5"),
		Discounts: []coupon.Discount{{Amount: d("3")}, {Amount: d("4")}},
	}
	assert.True(t, s.DiscountedSubtotal().IsZero())
}

func TestCartSummary_WithTip(t *testing.T) {
	signer, err := integrity.NewSigner([]byte("k"))
	require.NoError(t, err)

	s := scenarioSummary()
	s.Signature = signer.Sign(s.Totals())

	tipped, err := s.WithTip(d("3.00"))
	require.NoError(t, err)
	assert.Equal(t, "35.16", tipped.Total.StringFixed(2))
	assert.Equal(t, "3.00", tipped.Tip.StringFixed(2))
	assert.True(t, tipped.Reconciles())
	assert.NoError(t, tipped.Verify(signer), "tip must not invalidate the signature")

	// Original is untouched.
	assert.Equal(t, "32.16", s.Total.StringFixed(2))

	retipped, err := tipped.WithTip(d("1"))
	require.NoError(t, err)
	assert.Equal(t, "33.16", retipped.Total.StringFixed(2))

	_, err = s.WithTip(d("-0.01"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "tip", ve.Field)
}

func TestCartSummary_WithTipBounds(t *testing.T) {
	s := scenarioSummary()
	for _, tip := range []string{"1e20000000", "100000000", "0.001", "99999999.99"} {
		start := time.Now()
		_, err := s.WithTip(d(tip))
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, tip)
		assert.Equal(t, "tip", ve.Field)
		assert.Less(t, time.Since(start), 100*time.Millisecond, tip)
	}
}

func TestCartSummary_VerifyDetectsTampering(t *testing.T) {
	signer, err := integrity.NewSigner([]byte("k"))
	require.NoError(t, err)

	s := scenarioSummary()
	s.Signature = signer.Sign(s.Totals())
	require.NoError(t, s.Verify(signer))

	s.Total = s.Total.Sub(d("0.01"))
	assert.ErrorIs(t, s.Verify(signer), integrity.ErrMismatch)
}
