// Package handler exposes cart pricing, checkout, order operations and event
// streams over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/catalog"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/integrity"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
	"github.com/xenking/foodcart/internal/notify"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

// HeaderUserID identifies the signed in customer. It is set by the upstream
// gateway that owns customer authentication; absent means guest checkout.
const HeaderUserID = "X-User-ID"

const maxBodyBytes = 1 << 20

// Pricer computes signed cart summaries.
type Pricer interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.CartSummary, error)
}

// Orders is the order service used by the handlers.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, number string) (*order.Order, error)
	UpdateStatus(ctx context.Context, number string, to order.Status, actor, note string, override bool) (*order.Order, error)
	Refund(ctx context.Context, number, actor, note string) (*order.Order, error)
	Assign(ctx context.Context, number string, a order.Assignment) (*order.Order, error)
}

// Availability toggles menu items.
type Availability interface {
	SetAvailability(ctx context.Context, itemID string, available bool) (*catalog.MenuItem, error)
}

// Subscriber opens event subscriptions.
type Subscriber interface {
	Subscribe(channel string) (<-chan notify.Event, func())
}

// Params holds the dependencies of a Handler.
type Params struct {
	Pricer       Pricer
	Orders       Orders
	Availability Availability
	Events       Subscriber
	Auth         *Authenticator
	// Heartbeat is the keep-alive interval of event streams. Defaults to 15s.
	Heartbeat time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	pricer       Pricer
	orders       Orders
	availability Availability
	events       Subscriber
	auth         *Authenticator
	heartbeat    time.Duration
}

// New creates a Handler.
func New(p Params) *Handler {
	if p.Heartbeat <= 0 {
		p.Heartbeat = 15 * time.Second
	}
	return &Handler{
		pricer:       p.Pricer,
		orders:       p.Orders,
		availability: p.Availability,
		events:       p.Events,
		auth:         p.Auth,
		heartbeat:    p.Heartbeat,
	}
}

// Routes returns the API router mounted under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())

	r.Route("/api", func(r chi.Router) {
		r.Post("/cart/price", h.PriceCart)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/{number}", h.GetOrder)
		r.Get("/events", h.Events)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Require(auth.ScopeOrdersManage))
			r.Patch("/orders/{number}/status", h.UpdateStatus)
			r.Patch("/orders/{number}/assignment", h.Assign)
		})
		r.With(h.auth.Require(auth.ScopeOrdersOverride)).
			Post("/orders/{number}/refund", h.Refund)
		r.With(h.auth.Require(auth.ScopeCatalogManage)).
			Put("/items/{id}/availability", h.SetAvailability)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// badRequest reports a body that could not be decoded.
type badRequest struct {
	err error
}

func (e *badRequest) Error() string { return "malformed request body: " + e.err.Error() }

func (e *badRequest) Unwrap() error { return e.err }

// decode reads the request body and passes it to fn.
func decode(r *http.Request, fn func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &badRequest{err: err}
	}
	if err := fn(jx.DecodeBytes(body)); err != nil {
		return &badRequest{err: err}
	}
	return nil
}

// writeJSON renders v with status code.
func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to responses. Messages are the typed errors'
// own, never the wrapping context, so they stay stable and leak nothing.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		bad        *badRequest
		validation *pricing.ValidationError
		notFound   *pricing.NotFoundError
		unavail    *pricing.UnavailableError
		transition *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &bad):
		httpmiddleware.WriteError(w, http.StatusBadRequest, bad.Error())
	case errors.As(err, &validation):
		httpmiddleware.WriteError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, order.ErrNotFound.Error())
	case errors.Is(err, catalog.ErrItemNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, catalog.ErrItemNotFound.Error())
	case errors.As(err, &transition):
		httpmiddleware.WriteError(w, http.StatusConflict, transition.Error())
	case errors.Is(err, order.ErrConflict):
		httpmiddleware.WriteError(w, http.StatusConflict, order.ErrConflict.Error())
	case errors.As(err, &unavail):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, unavail.Error())
	case errors.Is(err, coupon.ErrIneligible):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, coupon.ErrIneligible.Error())
	case errors.Is(err, integrity.ErrMismatch):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, integrity.ErrMismatch.Error())
	case errors.Is(err, order.ErrQuoteStale):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, order.ErrQuoteStale.Error())
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
