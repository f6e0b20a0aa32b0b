package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/catalog"
)

// DeliveryMethod is how the order reaches the customer.
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// Valid reports whether m is a known method.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryDelivery
}

// UnmatchedZone selects what happens when a delivery names no known zone.
type UnmatchedZone string

const (
	// UnmatchedZoneReject fails the request with a ValidationError.
	UnmatchedZoneReject UnmatchedZone = "reject"
	// UnmatchedZoneZero charges no delivery fee.
	UnmatchedZoneZero UnmatchedZone = "zero"
)

// ParseUnmatchedZone parses a configuration value.
func ParseUnmatchedZone(s string) (UnmatchedZone, error) {
	switch v := UnmatchedZone(s); v {
	case UnmatchedZoneReject, UnmatchedZoneZero:
		return v, nil
	case "":
		return UnmatchedZoneReject, nil
	default:
		return "", errors.Errorf("unknown unmatched zone policy %q", s)
	}
}

// DeliveryResolver looks up flat delivery fees by zone.
type DeliveryResolver struct {
	Unmatched UnmatchedZone
}

// Resolve returns the delivery fee for method and zoneID among zones.
// subtotal is checked against the zone's minimum order.
func (r DeliveryResolver) Resolve(method DeliveryMethod, zoneID string, zones []catalog.DeliveryZone, subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch method {
	case DeliveryPickup:
		return decimal.Zero, nil
	case DeliveryDelivery:
	default:
		return decimal.Zero, invalid("deliveryMethod", "unknown method %q", method)
	}

	for _, z := range zones {
		if zoneID == "" || z.ID != zoneID {
			continue
		}
		if subtotal.LessThan(z.MinimumOrder) {
			return decimal.Zero, invalid("deliveryZoneId", "zone %q requires a minimum order of %s", z.ID, z.MinimumOrder.StringFixed(2))
		}
		return z.Fee.Round(2), nil
	}

	if r.Unmatched == UnmatchedZoneZero {
		return decimal.Zero, nil
	}
	if zoneID == "" {
		return decimal.Zero, invalid("deliveryZoneId", "required for delivery")
	}
	return decimal.Zero, invalid("deliveryZoneId", "unknown zone %q", zoneID)
}
