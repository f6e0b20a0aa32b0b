package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercent discounts a percentage of the subtotal.
	KindPercent Kind = "percent"
	// KindFixed discounts a fixed amount, capped at the subtotal.
	KindFixed Kind = "fixed"
)

var (
	// ErrNotFound is returned by repositories when no coupon has the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrIneligible is the only coupon failure surfaced to customers. It
	// deliberately carries no detail about why the coupon was rejected.
	ErrIneligible = errors.New("invalid or inapplicable coupon")
	// ErrExhausted is returned by Redeem when the global or per-user usage
	// limit has been reached.
	ErrExhausted = errors.New("coupon usage limit reached")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Zero MaxUses and PerUserLimit mean unlimited.
type Rule struct {
	Code         string
	Kind         Kind
	Value        decimal.Decimal
	Description  string
	MinSubtotal  decimal.Decimal
	MaxDiscount  *decimal.Decimal
	StartsAt     *time.Time
	EndsAt       *time.Time
	MaxUses      int
	UsedCount    int
	PerUserLimit int
	StoreIDs     []string
	CategoryIDs  []string
	Active       bool
}

// Discount is a priced coupon ready to be listed on a cart summary.
type Discount struct {
	Code        string
	Kind        Kind
	Description string
	Amount      decimal.Decimal
}

// Request is the context a coupon is resolved against.
type Request struct {
	Code     string
	Subtotal decimal.Decimal
	StoreID  string
	// UserID is empty for guest checkouts; per-user limits are skipped then.
	UserID string
	// CategorySubtotals maps category id to the subtotal of lines in it. Only
	// consulted by coupons with a category allowlist.
	CategorySubtotals map[string]decimal.Decimal
}

// Repository provides read access to coupon rules and their usage.
type Repository interface {
	// FindByCode returns the rule for the canonical code or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// CountUserRedemptions returns how many times userID has redeemed code.
	CountUserRedemptions(ctx context.Context, code, userID string) (int, error)
}

// Redeemer records coupon usage at order confirmation.
type Redeemer interface {
	// Redeem atomically increments the usage counters if and only if neither
	// the global nor the per-user limit has been reached. It returns
	// ErrExhausted otherwise.
	Redeem(ctx context.Context, code, userID string) error
	// Release reverts a previous successful Redeem.
	Release(ctx context.Context, code, userID string) error
}

// Canonical returns the storage form of a coupon code.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
