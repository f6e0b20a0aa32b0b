package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Multi publishes every event to all of its publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, channel, event string, payload []byte) {
	for _, p := range m {
		p.Publish(ctx, channel, event, payload)
	}
}

// Log records events in the context logger.
type Log struct{}

// Publish implements Publisher.
func (Log) Publish(ctx context.Context, channel, event string, payload []byte) {
	zctx.From(ctx).Debug("Event published",
		zap.String("channel", channel),
		zap.String("event", event),
		zap.Int("payload_bytes", len(payload)),
	)
}
