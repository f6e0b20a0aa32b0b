package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	// BroadcastChannel receives events relevant to every connected client.
	BroadcastChannel = "menu"
	// EventItemAvailability is published whenever an item is toggled.
	EventItemAvailability = "itemAvailabilityUpdate"
)

// Publisher is the subset of the event notifier used by the catalog.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte)
}

// AvailabilityService toggles item availability and announces it.
type AvailabilityService struct {
	items     Writer
	publisher Publisher
}

// NewAvailabilityService creates an AvailabilityService.
func NewAvailabilityService(items Writer, publisher Publisher) *AvailabilityService {
	return &AvailabilityService{items: items, publisher: publisher}
}

// SetAvailability persists the flag and publishes itemAvailabilityUpdate on
// the broadcast channel.
func (s *AvailabilityService) SetAvailability(ctx context.Context, itemID string, available bool) (*MenuItem, error) {
	item, err := s.items.SetItemAvailability(ctx, itemID, available)
	if err != nil {
		return nil, errors.Wrap(err, "set item availability")
	}

	zctx.From(ctx).Info("Item availability changed",
		zap.String("item_id", itemID),
		zap.Bool("available", available),
	)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("itemId")
	e.Str(item.ID)
	e.FieldStart("isAvailable")
	e.Bool(item.Available)
	e.ObjEnd()
	s.publisher.Publish(ctx, BroadcastChannel, EventItemAvailability, e.Bytes())

	return item, nil
}
