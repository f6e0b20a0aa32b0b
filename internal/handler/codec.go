package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/pricing"
)

// decodeCartField decodes one key of a cart pricing request into req. It
// reports whether key belongs to the cart.
func decodeCartField(d *jx.Decoder, key string, req *pricing.Request) (bool, error) {
	var err error
	switch key {
	case "storeId":
		req.StoreID, err = d.Str()
	case "items":
		err = d.Arr(func(d *jx.Decoder) error {
			var l pricing.CartLine
			if err := decodeCartLine(d, &l); err != nil {
				return err
			}
			req.Lines = append(req.Lines, l)
			return nil
		})
	case "deliveryMethod":
		var s string
		s, err = d.Str()
		req.DeliveryMethod = pricing.DeliveryMethod(s)
	case "deliveryZoneId":
		req.DeliveryZoneID, err = optStr(d)
	case "couponCode":
		req.CouponCode, err = optStr(d)
	case "zipCode":
		req.ZipCode, err = optStr(d)
	default:
		return false, nil
	}
	return true, err
}

func decodeCartLine(d *jx.Decoder, l *pricing.CartLine) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			l.ItemID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "selectedVariant":
			l.VariantID, err = optStr(d)
		case "selectedAddons":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				l.AddonIDs = append(l.AddonIDs, id)
				return err
			})
		case "instructions":
			l.Instructions, err = optStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

func decodeCartRequest(d *jx.Decoder) (pricing.Request, error) {
	var req pricing.Request
	err := d.Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeCartField(d, key, &req)
		if ok {
			return errors.Wrap(err, key)
		}
		return d.Skip()
	})
	return req, err
}

func decodePlaceOrder(d *jx.Decoder) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if ok, err := decodeCartField(d, key, &req.Cart); ok {
			return errors.Wrap(err, key)
		}
		var err error
		switch key {
		case "deliveryAddress":
			req.DeliveryAddress, err = optStr(d)
		case "tip":
			req.Tip, err = pricing.DecodeMoney(d)
		case "guest":
			if d.Next() == jx.Null {
				return d.Null()
			}
			g := &order.GuestContact{}
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "name":
					g.Name, err = d.Str()
				case "email":
					g.Email, err = optStr(d)
				case "phone":
					g.Phone, err = optStr(d)
				default:
					err = d.Skip()
				}
				return err
			})
			req.Guest = g
		case "quote":
			if d.Next() == jx.Null {
				return d.Null()
			}
			q := &pricing.CartSummary{}
			err = q.Decode(d)
			req.Quote = q
		case "payment":
			var raw jx.Raw
			raw, err = d.Raw()
			if err == nil && raw.Type() != jx.Null {
				req.Payment = append(jx.Raw(nil), raw...)
			}
		case "note":
			req.Note, err = optStr(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

type statusRequest struct {
	Status   order.Status
	Note     string
	Override bool
}

func decodeStatusRequest(d *jx.Decoder) (statusRequest, error) {
	var req statusRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			var s string
			s, err = d.Str()
			req.Status = order.Status(s)
		case "note":
			req.Note, err = optStr(d)
		case "override":
			req.Override, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

func decodeNote(d *jx.Decoder) (string, error) {
	var note string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "note" {
			return d.Skip()
		}
		var err error
		note, err = optStr(d)
		return err
	})
	return note, err
}

func decodeAssignment(d *jx.Decoder) (order.Assignment, error) {
	var a order.Assignment
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "assignedTo":
			a.HandlerID, err = optStr(d)
		case "estimatedReadyTime":
			var s string
			if s, err = optStr(d); err != nil || s == "" {
				return err
			}
			var t time.Time
			if t, err = time.Parse(time.RFC3339, s); err == nil {
				a.EstimatedReadyAt = &t
			}
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return a, err
}

func decodeAvailability(d *jx.Decoder) (bool, error) {
	var (
		available bool
		seen      bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "isAvailable" {
			return d.Skip()
		}
		seen = true
		var err error
		available, err = d.Bool()
		return err
	})
	if err == nil && !seen {
		err = errors.New("isAvailable is required")
	}
	return available, err
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
