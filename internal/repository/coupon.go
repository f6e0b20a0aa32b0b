package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/coupon"
)

const (
	couponColumns = `code, kind, value, description, min_subtotal, max_discount,
		starts_at, ends_at, max_uses, used_count, per_user_limit, store_ids, category_ids, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	countUserRedemptionsSQL = `SELECT COALESCE(
		(SELECT uses FROM coupon_redemptions WHERE code = $1 AND user_id = $2), 0)`

	// The WHERE clause is the compare half of compare-and-increment: the row
	// is only updated while the limit still has room.
	incrementCouponSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND active AND (max_uses = 0 OR used_count < max_uses)
		RETURNING per_user_limit`

	incrementUserRedemptionSQL = `INSERT INTO coupon_redemptions (code, user_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (code, user_id) DO UPDATE SET uses = coupon_redemptions.uses + 1
		WHERE $3 = 0 OR coupon_redemptions.uses < $3`

	decrementCouponSQL = `UPDATE coupons SET used_count = used_count - 1
		WHERE code = $1 AND used_count > 0`

	decrementUserRedemptionSQL = `UPDATE coupon_redemptions SET uses = uses - 1
		WHERE code = $1 AND user_id = $2 AND uses > 0`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value,
			description = EXCLUDED.description, min_subtotal = EXCLUDED.min_subtotal,
			max_discount = EXCLUDED.max_discount, starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at, max_uses = EXCLUDED.max_uses,
			per_user_limit = EXCLUDED.per_user_limit, store_ids = EXCLUDED.store_ids,
			category_ids = EXCLUDED.category_ids, active = EXCLUDED.active`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Redeemer   = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.Redeemer backed
// by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its canonical code, active or not.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.Canonical(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// CountUserRedemptions returns how often userID has redeemed code.
func (r *CouponRepository) CountUserRedemptions(ctx context.Context, code, userID string) (int, error) {
	var n int32
	if err := r.pool.QueryRow(ctx, countUserRedemptionsSQL, coupon.Canonical(code), userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions of %q: %w", code, err)
	}
	return int(n), nil
}

// Redeem increments the global and, for signed in users, the per-user usage
// counter in one transaction. Either limit being reached rolls both back.
func (r *CouponRepository) Redeem(ctx context.Context, code, userID string) error {
	code = coupon.Canonical(code)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var perUser int32
		err := tx.QueryRow(ctx, incrementCouponSQL, code).Scan(&perUser)
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrExhausted
		}
		if err != nil {
			return fmt.Errorf("incrementing uses of %q: %w", code, err)
		}
		if userID == "" {
			return nil
		}

		tag, err := tx.Exec(ctx, incrementUserRedemptionSQL, code, userID, perUser)
		if err != nil {
			return fmt.Errorf("incrementing user uses of %q: %w", code, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrExhausted
		}
		return nil
	})
}

// Release reverts one successful Redeem.
func (r *CouponRepository) Release(ctx context.Context, code, userID string) error {
	code = coupon.Canonical(code)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, decrementCouponSQL, code); err != nil {
			return fmt.Errorf("decrementing uses of %q: %w", code, err)
		}
		if userID == "" {
			return nil
		}
		if _, err := tx.Exec(ctx, decrementUserRedemptionSQL, code, userID); err != nil {
			return fmt.Errorf("decrementing user uses of %q: %w", code, err)
		}
		return nil
	})
}

// Save inserts or updates a coupon definition. The usage counter is never
// overwritten.
func (r *CouponRepository) Save(ctx context.Context, c coupon.Rule) error {
	if c.StoreIDs == nil {
		c.StoreIDs = []string{}
	}
	if c.CategoryIDs == nil {
		c.CategoryIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		coupon.Canonical(c.Code), string(c.Kind), c.Value, c.Description, c.MinSubtotal, c.MaxDiscount,
		c.StartsAt, c.EndsAt, c.MaxUses, c.UsedCount, c.PerUserLimit, c.StoreIDs, c.CategoryIDs, c.Active,
	)
	if err != nil {
		return fmt.Errorf("saving coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		kind         string
		maxUses      int32
		usedCount    int32
		perUserLimit int32
	)
	err := row.Scan(
		&rule.Code, &kind, &rule.Value, &rule.Description, &rule.MinSubtotal, &rule.MaxDiscount,
		&rule.StartsAt, &rule.EndsAt, &maxUses, &usedCount, &perUserLimit,
		&rule.StoreIDs, &rule.CategoryIDs, &rule.Active,
	)
	rule.Kind = coupon.Kind(kind)
	rule.MaxUses = int(maxUses)
	rule.UsedCount = int(usedCount)
	rule.PerUserLimit = int(perUserLimit)
	return rule, err
}
