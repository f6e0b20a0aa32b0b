// Package memstore keeps catalog, coupons, orders and API keys in process
// memory. It backs the "memory" storage mode and tests that need real
// collaborators without a database.
package memstore

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/order"
)

var (
	_ catalog.Reader    = (*Store)(nil)
	_ catalog.Writer    = (*Store)(nil)
	_ coupon.Repository = (*Store)(nil)
	_ coupon.Redeemer   = (*Store)(nil)
	_ order.Repository  = (*Store)(nil)
	_ order.Sequence    = (*Store)(nil)
	_ auth.Repository   = (*Store)(nil)
)

type redemptionKey struct {
	code   string
	userID string
}

// Store is a mutex guarded in-memory implementation of every repository
// contract. Returned values are copies.
type Store struct {
	mu          sync.RWMutex
	stores      map[string]catalog.Store
	items       map[string]catalog.MenuItem
	coupons     map[string]coupon.Rule
	redemptions map[redemptionKey]int
	orders      map[string]*order.Order
	keys        map[string]auth.APIKeyInfo

	seq atomic.Int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		stores:      make(map[string]catalog.Store),
		items:       make(map[string]catalog.MenuItem),
		coupons:     make(map[string]coupon.Rule),
		redemptions: make(map[redemptionKey]int),
		orders:      make(map[string]*order.Order),
		keys:        make(map[string]auth.APIKeyInfo),
	}
}

// SaveStore inserts or replaces a store with its zones.
func (s *Store) SaveStore(_ context.Context, st catalog.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Zones = slices.Clone(st.Zones)
	s.stores[st.ID] = st
	return nil
}

// SaveMenuItem inserts or replaces a menu item.
func (s *Store) SaveMenuItem(_ context.Context, it catalog.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
	return nil
}

// GetStore implements catalog.Reader.
func (s *Store) GetStore(_ context.Context, id string) (*catalog.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return nil, catalog.ErrStoreNotFound
	}
	st.Zones = slices.Clone(st.Zones)
	return &st, nil
}

// GetMenuItems implements catalog.Reader.
func (s *Store) GetMenuItems(_ context.Context, storeID string, ids []string) ([]catalog.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.MenuItem
	for _, id := range ids {
		it, ok := s.items[id]
		if !ok || it.StoreID != storeID {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// SetItemAvailability implements catalog.Writer.
func (s *Store) SetItemAvailability(_ context.Context, itemID string, available bool) (*catalog.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	it.Available = available
	s.items[itemID] = it
	return &it, nil
}

// SaveCoupon inserts or replaces a coupon under its canonical code.
func (s *Store) SaveCoupon(_ context.Context, r coupon.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Code = coupon.Canonical(r.Code)
	s.coupons[r.Code] = r
	return nil
}

// FindByCode implements coupon.Repository.
func (s *Store) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.coupons[coupon.Canonical(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &r, nil
}

// CountUserRedemptions implements coupon.Repository.
func (s *Store) CountUserRedemptions(_ context.Context, code, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redemptions[redemptionKey{coupon.Canonical(code), userID}], nil
}

// Redeem implements coupon.Redeemer. Both limits are checked and both
// counters incremented under one lock.
func (s *Store) Redeem(_ context.Context, code, userID string) error {
	code = coupon.Canonical(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.coupons[code]
	if !ok || !r.Active {
		return coupon.ErrExhausted
	}
	if r.MaxUses > 0 && r.UsedCount >= r.MaxUses {
		return coupon.ErrExhausted
	}
	key := redemptionKey{code, userID}
	if userID != "" && r.PerUserLimit > 0 && s.redemptions[key] >= r.PerUserLimit {
		return coupon.ErrExhausted
	}
	r.UsedCount++
	s.coupons[code] = r
	if userID != "" {
		s.redemptions[key]++
	}
	return nil
}

// Release implements coupon.Redeemer.
func (s *Store) Release(_ context.Context, code, userID string) error {
	code = coupon.Canonical(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.coupons[code]; ok && r.UsedCount > 0 {
		r.UsedCount--
		s.coupons[code] = r
	}
	key := redemptionKey{code, userID}
	if userID != "" && s.redemptions[key] > 0 {
		s.redemptions[key]--
	}
	return nil
}

// Create implements order.Repository.
func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.Number]; ok {
		return order.ErrConflict
	}
	s.orders[o.Number] = o.Clone()
	return nil
}

// GetByNumber implements order.Repository.
func (s *Store) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// AppendStatus implements order.Repository.
func (s *Store) AppendStatus(_ context.Context, from order.Status, next *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[next.Number]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Status != from || len(cur.Timeline)+1 != len(next.Timeline) {
		return order.ErrConflict
	}
	s.orders[next.Number] = next.Clone()
	return nil
}

// UpdateAssignment implements order.Repository.
func (s *Store) UpdateAssignment(_ context.Context, number string, a order.Assignment) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[number]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = o.Clone()
	o.HandlerID = a.HandlerID
	o.EstimatedReadyAt = a.EstimatedReadyAt
	o.UpdatedAt = time.Now().UTC()
	s.orders[number] = o
	return o.Clone(), nil
}

// NextOrderNumber implements order.Sequence.
func (s *Store) NextOrderNumber(context.Context) (int64, error) {
	return s.seq.Add(1), nil
}

// SaveAPIKey registers a key by its hash.
func (s *Store) SaveAPIKey(_ context.Context, k auth.APIKeyInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.Scopes = slices.Clone(k.Scopes)
	s.keys[k.KeyHash] = k
	return nil
}

// FindByHash implements auth.Repository.
func (s *Store) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &k, nil
}
