package coupon

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Reason names the eligibility check a coupon failed. It is meant for logs
// and admin tooling only.
type Reason string

// Eligibility failures, in evaluation order.
const (
	ReasonNone            Reason = ""
	ReasonNotFound        Reason = "not_found"
	ReasonInactive        Reason = "inactive"
	ReasonNotStarted      Reason = "not_started"
	ReasonExpired         Reason = "expired"
	ReasonStoreNotAllowed Reason = "store_not_allowed"
	ReasonBelowMinimum    Reason = "below_minimum_subtotal"
	ReasonUsageExhausted  Reason = "usage_exhausted"
	ReasonUserLimit       Reason = "user_limit_reached"
	ReasonNoEligibleItems Reason = "no_eligible_items"
	ReasonUnsupportedKind Reason = "unsupported_kind"
)

var hundred = decimal.NewFromInt(100)

// Evaluate runs every eligibility check of rule against req and, when all
// pass, prices the discount. userUses is the number of prior redemptions by
// req.UserID. The returned Reason is ReasonNone on success.
func Evaluate(rule *Rule, req Request, userUses int, now time.Time) (Discount, Reason) {
	if !rule.Active {
		return Discount{}, ReasonInactive
	}
	if rule.StartsAt != nil && now.Before(*rule.StartsAt) {
		return Discount{}, ReasonNotStarted
	}
	if rule.EndsAt != nil && !now.Before(*rule.EndsAt) {
		return Discount{}, ReasonExpired
	}
	if len(rule.StoreIDs) > 0 && !slices.Contains(rule.StoreIDs, req.StoreID) {
		return Discount{}, ReasonStoreNotAllowed
	}
	if req.Subtotal.LessThan(rule.MinSubtotal) {
		return Discount{}, ReasonBelowMinimum
	}
	if rule.MaxUses > 0 && rule.UsedCount >= rule.MaxUses {
		return Discount{}, ReasonUsageExhausted
	}
	if req.UserID != "" && rule.PerUserLimit > 0 && userUses >= rule.PerUserLimit {
		return Discount{}, ReasonUserLimit
	}

	base := req.Subtotal
	if len(rule.CategoryIDs) > 0 {
		base = eligibleBase(rule.CategoryIDs, req.CategorySubtotals)
		if !base.IsPositive() {
			return Discount{}, ReasonNoEligibleItems
		}
	}

	var amount decimal.Decimal
	switch rule.Kind {
	case KindPercent:
		amount = base.Mul(rule.Value).Div(hundred)
	case KindFixed:
		amount = rule.Value
	default:
		return Discount{}, ReasonUnsupportedKind
	}

	if rule.MaxDiscount != nil {
		amount = decimal.Min(amount, *rule.MaxDiscount)
	}
	amount = decimal.Min(amount, base)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		Code:        rule.Code,
		Kind:        rule.Kind,
		Description: rule.Description,
		Amount:      amount.Round(2),
	}, ReasonNone
}

// eligibleBase sums the subtotals of allowlisted categories.
func eligibleBase(categories []string, subtotals map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range categories {
		if v, ok := subtotals[c]; ok {
			sum = sum.Add(v)
		}
	}
	return sum
}
