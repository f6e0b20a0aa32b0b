package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PGChannel is the PostgreSQL notification channel carrying all events.
const PGChannel = "foodcart_events"

// maxNotifyPayload is the PostgreSQL limit for a NOTIFY payload.
const maxNotifyPayload = 8000

// PGNotifier relays events through PostgreSQL NOTIFY so every API instance
// can serve subscribers. Publish only enqueues; a single Run loop sends, which
// keeps per-channel order.
//
// Events whose envelope exceeds the NOTIFY limit are handed to local instead,
// so subscribers of this instance still receive them.
type PGNotifier struct {
	pool  *pgxpool.Pool
	local Publisher
	queue chan []byte
}

var _ Publisher = (*PGNotifier)(nil)

// NewPGNotifier creates a PGNotifier with a send queue of the given size.
// local receives events too large for NOTIFY; it is usually the Hub that
// Listen feeds.
func NewPGNotifier(pool *pgxpool.Pool, queue int, local Publisher) *PGNotifier {
	if queue <= 0 {
		queue = 256
	}
	return &PGNotifier{pool: pool, local: local, queue: make(chan []byte, queue)}
}

// Publish implements Publisher.
func (n *PGNotifier) Publish(ctx context.Context, channel, event string, payload []byte) {
	msg := EncodeEnvelope(Event{Channel: channel, Name: event, Payload: payload})
	lg := zctx.From(ctx).With(zap.String("channel", channel), zap.String("event", event))
	if len(msg) > maxNotifyPayload {
		lg.Warn("Event too large for NOTIFY, delivering locally", zap.Int("bytes", len(msg)))
		if n.local != nil {
			n.local.Publish(ctx, channel, event, payload)
		}
		return
	}
	select {
	case n.queue <- msg:
	default:
		lg.Warn("Notify queue full, dropping event")
	}
}

// Backlog returns the number of events waiting to be sent.
func (n *PGNotifier) Backlog() int {
	return len(n.queue)
}

// Run sends queued events until ctx is done.
func (n *PGNotifier) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.queue:
			if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, PGChannel, string(msg)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Error("Send notification", zap.Error(err))
			}
		}
	}
}

// Listen forwards notifications from PostgreSQL to dst until ctx is done,
// reconnecting after connection failures.
func Listen(ctx context.Context, pool *pgxpool.Pool, dst Publisher) error {
	lg := zctx.From(ctx)
	for {
		err := listenOnce(ctx, pool, dst)
		if ctx.Err() != nil {
			return nil
		}
		lg.Error("Notification listener stopped, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, dst Publisher) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+PGChannel); err != nil {
		return errors.Wrap(err, "listen")
	}
	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		ev, err := DecodeEnvelope([]byte(msg.Payload))
		if err != nil {
			zctx.From(ctx).Warn("Malformed notification", zap.Error(err))
			continue
		}
		dst.Publish(ctx, ev.Channel, ev.Name, ev.Payload)
	}
}

// EncodeEnvelope renders ev as {"channel","event","payload"}. The payload
// must already be valid JSON.
func EncodeEnvelope(ev Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("channel")
	e.Str(ev.Channel)
	e.FieldStart("event")
	e.Str(ev.Name)
	e.FieldStart("payload")
	if len(ev.Payload) == 0 {
		e.Null()
	} else {
		e.Raw(ev.Payload)
	}
	e.ObjEnd()
	return e.Bytes()
}

// DecodeEnvelope parses an envelope written by EncodeEnvelope.
func DecodeEnvelope(b []byte) (Event, error) {
	var ev Event
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "channel":
			ev.Channel, err = d.Str()
		case "event":
			ev.Name, err = d.Str()
		case "payload":
			var raw jx.Raw
			raw, err = d.Raw()
			if err == nil && raw.Type() != jx.Null {
				ev.Payload = append([]byte(nil), raw...)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return Event{}, errors.Wrap(err, "decode envelope")
	}
	if ev.Channel == "" || ev.Name == "" {
		return Event{}, errors.New("envelope without channel or event")
	}
	return ev, nil
}
