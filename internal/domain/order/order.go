package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/foodcart/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when no order has the requested number.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when an order changed between read and write.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrQuoteStale is returned when a correctly signed quote no longer
	// matches current pricing.
	ErrQuoteStale = errors.New("quote is out of date, please review your cart")
)

// Status is the operational state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusPickedUp       Status = "picked_up"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no forward transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// StatusUpdate is one append-only entry of an order timeline.
type StatusUpdate struct {
	Status Status
	At     time.Time
	Note   string
	// Actor is the user, staff member or API key that made the change.
	Actor string
}

// GuestContact identifies a customer checking out without an account.
type GuestContact struct {
	Name  string
	Email string
	Phone string
}

// Order is a placed order. Pricing is frozen at creation.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Guest           *GuestContact
	StoreID         string
	Items           []pricing.PricedLine
	Pricing         pricing.CartSummary
	DeliveryMethod  pricing.DeliveryMethod
	DeliveryAddress string
	DeliveryZoneID  string
	Status          Status
	Timeline        []StatusUpdate
	HandlerID       string
	// Payment is an opaque record attached by the payment provider.
	Payment          jx.Raw
	EstimatedReadyAt *time.Time
	ActualReadyAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Last returns the newest timeline entry.
func (o *Order) Last() StatusUpdate {
	if len(o.Timeline) == 0 {
		return StatusUpdate{}
	}
	return o.Timeline[len(o.Timeline)-1]
}

// Clone returns a deep copy of the mutable parts of o.
func (o *Order) Clone() *Order {
	c := *o
	c.Timeline = append([]StatusUpdate(nil), o.Timeline...)
	c.Items = append([]pricing.PricedLine(nil), o.Items...)
	if o.Guest != nil {
		g := *o.Guest
		c.Guest = &g
	}
	if o.EstimatedReadyAt != nil {
		t := *o.EstimatedReadyAt
		c.EstimatedReadyAt = &t
	}
	if o.ActualReadyAt != nil {
		t := *o.ActualReadyAt
		c.ActualReadyAt = &t
	}
	return &c
}

// Assignment sets the handling staff member and the kitchen estimate.
type Assignment struct {
	HandlerID        string
	EstimatedReadyAt *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetByNumber returns the order or ErrNotFound.
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// AppendStatus stores next's newest timeline entry as the current status
	// only while the stored status still equals from, returning ErrConflict
	// otherwise. Status, timeline and actual ready time change together.
	AppendStatus(ctx context.Context, from Status, next *Order) error
	// UpdateAssignment sets handler and estimate without touching status.
	UpdateAssignment(ctx context.Context, number string, a Assignment) (*Order, error)
}

// Sequence hands out unique, increasing order numbers.
type Sequence interface {
	NextOrderNumber(ctx context.Context) (int64, error)
}

// Publisher is the event notifier used by the order service.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte)
}

// Event names.
const (
	EventNewOrder     = "newOrder"
	EventStatusUpdate = "orderStatusUpdate"
)

// StoreChannel is the staff dashboard channel of a store.
func StoreChannel(storeID string) string { return "store:" + storeID }

// OrderChannel is the tracking channel of a single order.
func OrderChannel(number string) string { return "order:" + number }
