package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule      *Rule
	err       error
	userUses  int
	countErr  error
	foundCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.foundCode = code
	return m.rule, m.err
}

func (m *mockCouponRepo) CountUserRedemptions(_ context.Context, _, _ string) (int, error) {
	return m.userUses, m.countErr
}

func TestResolver_Resolve(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		req        Request
		wantAmount *decimal.Decimal
	}{
		{
			name: "percent coupon scenario",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "SAVE10", Kind: KindPercent, Value: d("10"), MinSubtotal: d("20"), Active: true,
			}},
			req:        Request{Code: "save10", Subtotal: d("27.00"), StoreID: "s1"},
			wantAmount: ptr(d("2.70")),
		},
		{
			name: "unknown code resolves to nil",
			repo: &mockCouponRepo{err: ErrNotFound},
			req:  Request{Code: "BOGUS", Subtotal: d("50")},
		},
		{
			name: "expired coupon resolves to nil",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "OLD", Kind: KindPercent, Value: d("10"), EndsAt: &pastTime, Active: true,
			}},
			req: Request{Code: "OLD", Subtotal: d("100")},
		},
		{
			name: "coupon within window",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "WINDOW", Kind: KindFixed, Value: d("5"), StartsAt: &pastTime, EndsAt: &futureTime, Active: true,
			}},
			req:        Request{Code: "WINDOW", Subtotal: d("100")},
			wantAmount: ptr(d("5")),
		},
		{
			name: "per-user limit reached",
			repo: &mockCouponRepo{
				rule:     &Rule{Code: "ONCE", Kind: KindFixed, Value: d("5"), PerUserLimit: 1, Active: true},
				userUses: 1,
			},
			req: Request{Code: "ONCE", Subtotal: d("100"), UserID: "u1"},
		},
		{
			name: "per-user limit ignored for guests",
			repo: &mockCouponRepo{
				rule:     &Rule{Code: "ONCE", Kind: KindFixed, Value: d("5"), PerUserLimit: 1, Active: true},
				userUses: 1,
			},
			req:        Request{Code: "ONCE", Subtotal: d("100")},
			wantAmount: ptr(d("5")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.repo)
			r.now = func() time.Time { return fixedNow }

			got, err := r.Resolve(context.Background(), tt.req)
			require.NoError(t, err)

			if tt.wantAmount == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestResolver_CanonicalLookup(t *testing.T) {
	repo := &mockCouponRepo{err: ErrNotFound}
	r := NewResolver(repo)

	_, err := r.Resolve(context.Background(), Request{Code: "  save10 ", Subtotal: d("10")})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.foundCode)
}

func TestResolver_Explain(t *testing.T) {
	repo := &mockCouponRepo{rule: &Rule{
		Code: "BIG", Kind: KindFixed, Value: d("5"), MinSubtotal: d("50"), Active: true,
	}}
	r := NewResolver(repo)

	_, reason, err := r.Explain(context.Background(), Request{Code: "BIG", Subtotal: d("10")})
	require.NoError(t, err)
	assert.Equal(t, ReasonBelowMinimum, reason)
}

func TestResolver_ExplainUnknownAndInactive(t *testing.T) {
	ctx := context.Background()

	unknown := NewResolver(&mockCouponRepo{err: errors.Wrap(ErrNotFound, "code GHOST")})
	_, reason, err := unknown.Explain(ctx, Request{Code: "ghost", Subtotal: d("100")})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, reason)

	retired := NewResolver(&mockCouponRepo{rule: &Rule{
		Code: "OLD", Kind: KindFixed, Value: d("5"), Active: false,
	}})
	_, reason, err = retired.Explain(ctx, Request{Code: "OLD", Subtotal: d("100")})
	require.NoError(t, err)
	assert.Equal(t, ReasonInactive, reason)
}

func TestResolver_RepositoryError(t *testing.T) {
	r := NewResolver(&mockCouponRepo{err: errors.New("db down")})

	_, err := r.Resolve(context.Background(), Request{Code: "ANY", Subtotal: d("10")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestResolver_CountError(t *testing.T) {
	r := NewResolver(&mockCouponRepo{
		rule:     &Rule{Code: "ONCE", Kind: KindFixed, Value: d("5"), PerUserLimit: 1, Active: true},
		countErr: errors.New("db down"),
	})

	_, err := r.Resolve(context.Background(), Request{Code: "ONCE", Subtotal: d("10"), UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count user redemptions")
}

func ptr[T any](v T) *T {
	return &v
}
