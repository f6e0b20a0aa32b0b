package order

import (
	"fmt"
	"slices"
	"time"
)

// transitions lists the forward edges of the order state machine.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusPickedUp, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      nil,
	StatusPickedUp:       nil,
	StatusCancelled:      nil,
	StatusRefunded:       nil,
}

// CanTransition reports whether from -> to is a legal forward edge.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// InvalidTransitionError is returned for an edge the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Lifecycle is the only mutator of order status. Every method returns a new
// Order and leaves its argument untouched.
type Lifecycle struct {
	now func() time.Time
}

// NewLifecycle creates a Lifecycle using the wall clock.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{now: time.Now}
}

// Begin puts a new order into pending with a single timeline entry.
func (l *Lifecycle) Begin(o *Order, actor, note string) *Order {
	next := o.Clone()
	now := l.now().UTC()
	next.Status = StatusPending
	next.Timeline = []StatusUpdate{{Status: StatusPending, At: now, Note: note, Actor: actor}}
	next.ActualReadyAt = nil
	next.CreatedAt = now
	next.UpdatedAt = now
	return next
}

// Transition moves o along a legal forward edge.
func (l *Lifecycle) Transition(o *Order, to Status, actor, note string) (*Order, error) {
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}
	return l.apply(o, to, actor, note), nil
}

// Override sets any non-refund status on an order that has not reached a
// terminal state, including re-entering the current one. It is reserved for
// administrators.
func (l *Lifecycle) Override(o *Order, to Status, actor, note string) (*Order, error) {
	if !to.Valid() || to == StatusRefunded || o.Status.Terminal() {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}
	return l.apply(o, to, actor, note), nil
}

// Refund moves a completed order to refunded.
func (l *Lifecycle) Refund(o *Order, actor, note string) (*Order, error) {
	if o.Status != StatusDelivered && o.Status != StatusPickedUp {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusRefunded}
	}
	return l.apply(o, StatusRefunded, actor, note), nil
}

func (l *Lifecycle) apply(o *Order, to Status, actor, note string) *Order {
	next := o.Clone()
	now := l.now().UTC()
	next.Status = to
	next.Timeline = append(next.Timeline, StatusUpdate{Status: to, At: now, Note: note, Actor: actor})
	next.UpdatedAt = now
	if to == StatusReady && next.ActualReadyAt == nil {
		next.ActualReadyAt = &now
	}
	return next
}
