package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Resolver validates a coupon code against a pricing context and returns
// the computed discount.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve looks up the coupon for req.Code and evaluates it. An unknown or
// ineligible coupon yields a nil Discount and a nil error; the failed check
// is logged at debug level. Usage counters are not touched.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Discount, error) {
	d, reason, err := r.Explain(ctx, req)
	if err != nil {
		return nil, err
	}
	if reason != ReasonNone {
		zctx.From(ctx).Debug("Coupon not applied",
			zap.String("code", Canonical(req.Code)),
			zap.String("reason", string(reason)),
		)
		return nil, nil
	}
	return &d, nil
}

// Explain is Resolve for admin call sites: it also returns the name of the
// failed check. Unknown codes report ReasonNotFound.
func (r *Resolver) Explain(ctx context.Context, req Request) (Discount, Reason, error) {
	code := Canonical(req.Code)
	req.Code = code

	rule, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Discount{}, ReasonNotFound, nil
		}
		return Discount{}, ReasonNone, errors.Wrap(err, "lookup coupon")
	}

	userUses := 0
	if req.UserID != "" && rule.PerUserLimit > 0 {
		userUses, err = r.repo.CountUserRedemptions(ctx, code, req.UserID)
		if err != nil {
			return Discount{}, ReasonNone, errors.Wrap(err, "count user redemptions")
		}
	}

	d, reason := Evaluate(rule, req, userUses, r.now())
	return d, reason, nil
}
