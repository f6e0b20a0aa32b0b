package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
)

// CartSummary is the priced breakdown of a cart. Once attached to an order
// it is frozen and never recomputed.
type CartSummary struct {
	StoreID        string
	Lines          []PricedLine
	Subtotal       decimal.Decimal
	Discounts      []coupon.Discount
	Taxes          []Tax
	Fees           []Fee
	DeliveryMethod DeliveryMethod
	DeliveryZoneID string
	DeliveryFee    decimal.Decimal
	Tip            decimal.Decimal
	Total          decimal.Decimal
	Signature      string
}

// TotalDiscount sums all discount lines.
func (s *CartSummary) TotalDiscount() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range s.Discounts {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// TotalTax sums all tax lines.
func (s *CartSummary) TotalTax() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range s.Taxes {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// TotalFee sums all fee lines.
func (s *CartSummary) TotalFee() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range s.Fees {
		sum = sum.Add(f.Amount)
	}
	return sum
}

// DiscountedSubtotal is the subtotal minus discounts, floored at zero.
func (s *CartSummary) DiscountedSubtotal() decimal.Decimal {
	return decimal.Max(decimal.Zero, s.Subtotal.Sub(s.TotalDiscount()))
}

// ExpectedTotal recomputes the total from its components.
func (s *CartSummary) ExpectedTotal() decimal.Decimal {
	return s.DiscountedSubtotal().
		Add(s.TotalTax()).
		Add(s.TotalFee()).
		Add(s.DeliveryFee).
		Add(s.Tip).
		Round(2)
}

// Reconciles reports whether Total matches its components to the cent.
func (s *CartSummary) Reconciles() bool {
	return s.Total.Round(2).Equal(s.ExpectedTotal())
}

// Totals returns the signed amounts. The tip is excluded from the total.
func (s *CartSummary) Totals() integrity.Totals {
	return integrity.Totals{
		Subtotal:    s.Subtotal,
		Discount:    s.TotalDiscount(),
		Tax:         s.TotalTax(),
		Fee:         s.TotalFee(),
		DeliveryFee: s.DeliveryFee,
		Total:       s.Total.Sub(s.Tip),
	}
}

// WithTip returns a copy of s carrying tip instead of the current tip. The
// signature stays valid since the tip is not signed.
func (s *CartSummary) WithTip(tip decimal.Decimal) (*CartSummary, error) {
	if tip.IsNegative() {
		return nil, invalid("tip", "must not be negative")
	}
	if err := CheckMoney(tip); err != nil {
		return nil, invalid("tip", "must be at most %s with two decimal places", MaxMoney)
	}
	out := *s
	out.Total = s.Total.Sub(s.Tip).Add(tip).Round(2)
	out.Tip = tip
	if out.Total.GreaterThan(MaxMoney) {
		return nil, invalid("tip", "order total exceeds %s", MaxMoney)
	}
	return &out, nil
}

// Verify checks the summary signature with signer.
func (s *CartSummary) Verify(signer *integrity.Signer) error {
	return signer.Verify(s.Totals(), s.Signature)
}
