package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// SetAvailability flips an item's availability flag.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var available bool
	if err := decode(r, func(d *jx.Decoder) (err error) {
		available, err = decodeAvailability(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}

	item, err := h.availability.SetAvailability(ctx, chi.URLParam(r, "id"), available)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Str(item.ID)
		e.FieldStart("isAvailable")
		e.Bool(item.Available)
		e.ObjEnd()
	})
}
