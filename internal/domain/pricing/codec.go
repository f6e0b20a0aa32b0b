package pricing

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/coupon"
)

// EncodeMoney writes v as a JSON number with two decimal places.
func EncodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

var (
	// MaxMoney is the largest amount a NUMERIC(10,2) column holds.
	MaxMoney = decimal.RequireFromString("99999999.99")
	maxRate  = decimal.NewFromInt(100)
)

// ErrOutOfRange is returned for decimals with too many places or digits.
var ErrOutOfRange = errors.New("decimal out of range")

const (
	// maxExponent bounds the decimal exponent before any rescaling happens.
	maxExponent = 16
	maxDigits   = 32
)

// DecodeMoney reads a JSON number or numeric string with at most two
// decimal places and an absolute value of at most MaxMoney.
func DecodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	return decodeBounded(d, 2, MaxMoney)
}

// DecodeRate reads a percentage rate in [0, 100] with at most three
// decimal places.
func DecodeRate(d *jx.Decoder) (decimal.Decimal, error) {
	v, err := decodeBounded(d, 3, maxRate)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, errors.Wrapf(ErrOutOfRange, "rate %s", v)
	}
	return v, nil
}

func decodeBounded(d *jx.Decoder, places int32, limit decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	} else {
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	}
	return ParseBounded(raw, places, limit)
}

// ParseBounded parses s and rejects values that need more than places
// decimal places or whose magnitude exceeds limit. The exponent is checked
// before any rescaling so that inputs like "1e20000000" stay cheap.
func ParseBounded(s string, places int32, limit decimal.Decimal) (decimal.Decimal, error) {
	if len(s) > maxDigits {
		return decimal.Zero, errors.Wrapf(ErrOutOfRange, "%d characters", len(s))
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := checkBounded(v, places, limit); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// CheckMoney reports whether v fits in two decimal places and MaxMoney.
func CheckMoney(v decimal.Decimal) error {
	return checkBounded(v, 2, MaxMoney)
}

func checkBounded(v decimal.Decimal, places int32, limit decimal.Decimal) error {
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return errors.Wrapf(ErrOutOfRange, "exponent %d", exp)
	}
	if !v.Equal(v.Truncate(places)) {
		return errors.Wrapf(ErrOutOfRange, "more than %d decimal places", places)
	}
	if v.Abs().GreaterThan(limit) {
		return errors.Wrapf(ErrOutOfRange, "exceeds %s", limit)
	}
	return nil
}

// Encode writes s in its wire and storage form.
func (s *CartSummary) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("storeId")
	e.Str(s.StoreID)

	e.FieldStart("items")
	e.ArrStart()
	for i := range s.Lines {
		s.Lines[i].Encode(e)
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	EncodeMoney(e, s.Subtotal)

	e.FieldStart("discounts")
	e.ArrStart()
	for _, d := range s.Discounts {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(d.Code)
		e.FieldStart("kind")
		e.Str(string(d.Kind))
		if d.Description != "" {
			e.FieldStart("description")
			e.Str(d.Description)
		}
		e.FieldStart("amount")
		EncodeMoney(e, d.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("taxes")
	e.ArrStart()
	for _, t := range s.Taxes {
		encodeCharge(e, t.Name, t.Rate, t.Amount)
	}
	e.ArrEnd()

	e.FieldStart("fees")
	e.ArrStart()
	for _, f := range s.Fees {
		encodeCharge(e, f.Name, f.Rate, f.Amount)
	}
	e.ArrEnd()

	e.FieldStart("deliveryMethod")
	e.Str(string(s.DeliveryMethod))
	if s.DeliveryZoneID != "" {
		e.FieldStart("deliveryZoneId")
		e.Str(s.DeliveryZoneID)
	}
	e.FieldStart("deliveryFee")
	EncodeMoney(e, s.DeliveryFee)
	e.FieldStart("tip")
	EncodeMoney(e, s.Tip)
	e.FieldStart("total")
	EncodeMoney(e, s.Total)
	e.FieldStart("signature")
	e.Str(s.Signature)
	e.ObjEnd()
}

func encodeCharge(e *jx.Encoder, name string, rate, amount decimal.Decimal) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(name)
	e.FieldStart("rate")
	e.Num(jx.Num(rate.String()))
	e.FieldStart("amount")
	EncodeMoney(e, amount)
	e.ObjEnd()
}

// Encode writes a priced line.
func (l *PricedLine) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("itemId")
	e.Str(l.ItemID)
	e.FieldStart("name")
	e.Str(l.Name)
	if l.CategoryID != "" {
		e.FieldStart("categoryId")
		e.Str(l.CategoryID)
	}
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	if l.VariantID != "" {
		e.FieldStart("selectedVariant")
		e.Str(l.VariantID)
		e.FieldStart("variantName")
		e.Str(l.VariantName)
	}
	e.FieldStart("selectedAddons")
	e.ArrStart()
	for _, a := range l.Addons {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(a.ID)
		e.FieldStart("name")
		e.Str(a.Name)
		e.FieldStart("priceDelta")
		EncodeMoney(e, a.PriceDelta)
		e.ObjEnd()
	}
	e.ArrEnd()
	if l.Instructions != "" {
		e.FieldStart("instructions")
		e.Str(l.Instructions)
	}
	e.FieldStart("unitPrice")
	EncodeMoney(e, l.UnitPrice)
	e.FieldStart("lineTotal")
	EncodeMoney(e, l.LineTotal)
	e.ObjEnd()
}

// Decode reads a summary written by Encode. Unknown fields are skipped.
func (s *CartSummary) Decode(d *jx.Decoder) error {
	*s = CartSummary{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "storeId":
			s.StoreID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var l PricedLine
				if err := l.Decode(d); err != nil {
					return err
				}
				s.Lines = append(s.Lines, l)
				return nil
			})
		case "subtotal":
			s.Subtotal, err = DecodeMoney(d)
		case "discounts":
			err = d.Arr(func(d *jx.Decoder) error {
				var disc coupon.Discount
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "code":
						disc.Code, err = d.Str()
					case "kind":
						var k string
						k, err = d.Str()
						disc.Kind = coupon.Kind(k)
					case "description":
						disc.Description, err = d.Str()
					case "amount":
						disc.Amount, err = DecodeMoney(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				s.Discounts = append(s.Discounts, disc)
				return nil
			})
		case "taxes":
			err = d.Arr(func(d *jx.Decoder) error {
				var t Tax
				if err := decodeCharge(d, &t.Name, &t.Rate, &t.Amount); err != nil {
					return err
				}
				s.Taxes = append(s.Taxes, t)
				return nil
			})
		case "fees":
			err = d.Arr(func(d *jx.Decoder) error {
				var f Fee
				if err := decodeCharge(d, &f.Name, &f.Rate, &f.Amount); err != nil {
					return err
				}
				s.Fees = append(s.Fees, f)
				return nil
			})
		case "deliveryMethod":
			var m string
			m, err = d.Str()
			s.DeliveryMethod = DeliveryMethod(m)
		case "deliveryZoneId":
			s.DeliveryZoneID, err = d.Str()
		case "deliveryFee":
			s.DeliveryFee, err = DecodeMoney(d)
		case "tip":
			s.Tip, err = DecodeMoney(d)
		case "total":
			s.Total, err = DecodeMoney(d)
		case "signature":
			s.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

func decodeCharge(d *jx.Decoder, name *string, rate, amount *decimal.Decimal) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			*name, err = d.Str()
		case "rate":
			*rate, err = DecodeRate(d)
		case "amount":
			*amount, err = DecodeMoney(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// Decode reads a priced line written by Encode.
func (l *PricedLine) Decode(d *jx.Decoder) error {
	*l = PricedLine{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			l.ItemID, err = d.Str()
		case "name":
			l.Name, err = d.Str()
		case "categoryId":
			l.CategoryID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "selectedVariant":
			l.VariantID, err = d.Str()
		case "variantName":
			l.VariantName, err = d.Str()
		case "selectedAddons":
			err = d.Arr(func(d *jx.Decoder) error {
				var a PricedAddon
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						a.ID, err = d.Str()
					case "name":
						a.Name, err = d.Str()
					case "priceDelta":
						a.PriceDelta, err = DecodeMoney(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				l.Addons = append(l.Addons, a)
				l.AddonIDs = append(l.AddonIDs, a.ID)
				return nil
			})
		case "instructions":
			l.Instructions, err = d.Str()
		case "unitPrice":
			l.UnitPrice, err = DecodeMoney(d)
		case "lineTotal":
			l.LineTotal, err = DecodeMoney(d)
		default:
			err = d.Skip()
		}
		return err
	})
}
