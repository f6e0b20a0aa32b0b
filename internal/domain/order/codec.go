package order

import (
	"time"

	"github.com/go-faster/jx"
)

// Encode writes the order in its wire form, the newOrder event payload.
func (o *Order) Encode(e *jx.Encoder) {
	o.encode(e, true)
}

// EncodePublic writes the order without the user reference, guest contact,
// delivery address, payment and assignment.
func (o *Order) EncodePublic(e *jx.Encoder) {
	o.encode(e, false)
}

func (o *Order) encode(e *jx.Encoder, private bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	if private && o.UserID != "" {
		e.FieldStart("userId")
		e.Str(o.UserID)
	}
	if private && o.Guest != nil {
		e.FieldStart("guest")
		e.ObjStart()
		e.FieldStart("name")
		e.Str(o.Guest.Name)
		e.FieldStart("email")
		e.Str(o.Guest.Email)
		e.FieldStart("phone")
		e.Str(o.Guest.Phone)
		e.ObjEnd()
	}
	e.FieldStart("storeId")
	e.Str(o.StoreID)

	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		o.Items[i].Encode(e)
	}
	e.ArrEnd()

	e.FieldStart("pricing")
	o.Pricing.Encode(e)

	e.FieldStart("deliveryMethod")
	e.Str(string(o.DeliveryMethod))
	if private && o.DeliveryAddress != "" {
		e.FieldStart("deliveryAddress")
		e.Str(o.DeliveryAddress)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))

	e.FieldStart("timeline")
	e.ArrStart()
	for _, u := range o.Timeline {
		u.Encode(e)
	}
	e.ArrEnd()

	if private && o.HandlerID != "" {
		e.FieldStart("assignedTo")
		e.Str(o.HandlerID)
	}
	if private && len(o.Payment) > 0 {
		e.FieldStart("payment")
		e.Raw(o.Payment)
	}
	encodeTime(e, "estimatedReadyTime", o.EstimatedReadyAt)
	encodeTime(e, "actualReadyTime", o.ActualReadyAt)
	encodeTime(e, "createdAt", &o.CreatedAt)
	encodeTime(e, "updatedAt", &o.UpdatedAt)
	e.ObjEnd()
}

// Encode writes a timeline entry.
func (u StatusUpdate) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(u.Status))
	e.FieldStart("timestamp")
	e.Str(u.At.UTC().Format(time.RFC3339Nano))
	if u.Note != "" {
		e.FieldStart("note")
		e.Str(u.Note)
	}
	if u.Actor != "" {
		e.FieldStart("updatedBy")
		e.Str(u.Actor)
	}
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, field string, t *time.Time) {
	if t == nil || t.IsZero() {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// orderPayload is the newOrder event body.
func orderPayload(o *Order) []byte {
	var e jx.Encoder
	o.Encode(&e)
	return e.Bytes()
}

// statusPayload is the orderStatusUpdate event body.
func statusPayload(o *Order) []byte {
	u := o.Last()
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	e.FieldStart("status")
	e.Str(string(u.Status))
	e.FieldStart("timestamp")
	e.Str(u.At.UTC().Format(time.RFC3339Nano))
	if u.Note != "" {
		e.FieldStart("note")
		e.Str(u.Note)
	}
	e.ObjEnd()
	return e.Bytes()
}
