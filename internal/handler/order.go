package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/foodcart/internal/domain/auth"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
	"github.com/xenking/foodcart/pkg/httpmiddleware"
)

// PriceCart returns the signed CartSummary of a cart. The tip is always zero.
func (h *Handler) PriceCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pricing.Request
	if err := decode(r, func(d *jx.Decoder) (err error) {
		req, err = decodeCartRequest(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.UserID = r.Header.Get(HeaderUserID)

	summary, err := h.pricer.Calculate(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary.Encode)
}

// PlaceOrder runs checkout and returns the pending order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req order.PlaceOrderRequest
	if err := decode(r, func(d *jx.Decoder) (err error) {
		req, err = decodePlaceOrder(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.Cart.UserID = r.Header.Get(HeaderUserID)

	o, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.Number)
	writeJSON(w, http.StatusCreated, o.Encode)
}

// GetOrder returns an order by number. Callers without an orders:manage key
// get the public view.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	private := false
	if presentedKey(r) != "" {
		info, err := h.auth.Authenticate(ctx, r)
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		private = info.HasScope(auth.ScopeOrdersManage)
	}

	o, err := h.orders.Get(ctx, chi.URLParam(r, "number"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if private {
		writeJSON(w, http.StatusOK, o.Encode)
		return
	}
	writeJSON(w, http.StatusOK, o.EncodePublic)
}

// UpdateStatus applies a lifecycle transition. Overrides need the
// orders:override scope in addition to orders:manage.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req statusRequest
	if err := decode(r, func(d *jx.Decoder) (err error) {
		req, err = decodeStatusRequest(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}
	if !req.Status.Valid() {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid status: "+string(req.Status))
		return
	}
	if req.Override {
		if k, ok := auth.FromContext(ctx); !ok || !k.HasScope(auth.ScopeOrdersOverride) {
			httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+auth.ScopeOrdersOverride)
			return
		}
	}

	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "number"), req.Status, actor(ctx), req.Note, req.Override)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Encode)
}

// Refund moves a completed order to refunded.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var note string
	if r.ContentLength != 0 {
		if err := decode(r, func(d *jx.Decoder) (err error) {
			note, err = decodeNote(d)
			return err
		}); err != nil {
			writeError(ctx, w, err)
			return
		}
	}

	o, err := h.orders.Refund(ctx, chi.URLParam(r, "number"), actor(ctx), note)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Encode)
}

// Assign sets the handling staff member and the estimated ready time.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var a order.Assignment
	if err := decode(r, func(d *jx.Decoder) (err error) {
		a, err = decodeAssignment(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}

	o, err := h.orders.Assign(ctx, chi.URLParam(r, "number"), a)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Encode)
}
