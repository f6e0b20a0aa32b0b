package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

// Events streams a channel as server-sent events. Order and menu channels
// are public; store channels carry every order of the store and need a key
// with orders:manage.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := r.URL.Query().Get("channel")
	switch {
	case channel == catalog.BroadcastChannel:
	case strings.HasPrefix(channel, order.OrderChannel("")) && len(channel) > len(order.OrderChannel("")):
	case strings.HasPrefix(channel, order.StoreChannel("")) && len(channel) > len(order.StoreChannel("")):
		k, err := h.auth.Authenticate(ctx, r)
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		if !k.HasScope(auth.ScopeOrdersManage) {
			httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+auth.ScopeOrdersManage)
			return
		}
	default:
		httpmiddleware.WriteError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := h.events.Subscribe(channel)
	defer cancel()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		zctx.From(ctx).Debug("Event stream not flushable", zap.Error(err))
		return
	}

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(formatEvent(ev.Name, ev.Payload)); err != nil {
				return
			}
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// formatEvent renders one server-sent event. Payloads are single-line JSON;
// any newline is split into further data lines.
func formatEvent(name string, payload []byte) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(name)
	b.WriteByte('\n')
	for line := range strings.SplitSeq(string(payload), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
