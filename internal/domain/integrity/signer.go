// Package integrity signs computed cart totals so that a summary echoed back
// by a client at order time can be checked for tampering.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrMismatch is returned when a signature does not match the totals.
var ErrMismatch = errors.New("pricing signature mismatch")

// Totals are the signed amounts of a cart summary. Total excludes the tip,
// which is chosen after pricing.
type Totals struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Fee         decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Signer computes HMAC-SHA256 signatures over Totals.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer with the given secret key.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

// Sign returns the hex encoded signature of t.
func (s *Signer) Sign(t Totals) string {
	return hex.EncodeToString(s.mac(t))
}

// Verify checks signature against t in constant time.
func (s *Signer) Verify(t Totals, signature string) error {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare(s.mac(t), got) != 1 {
		return ErrMismatch
	}
	return nil
}

func (s *Signer) mac(t Totals) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write(Canonical(t))
	return m.Sum(nil)
}

// Canonical serializes t as newline separated key=value pairs sorted by key,
// amounts fixed to two decimal places.
func Canonical(t Totals) []byte {
	fields := map[string]decimal.Decimal{
		"deliveryFee": t.DeliveryFee,
		"discount":    t.Discount,
		"fee":         t.Fee,
		"subtotal":    t.Subtotal,
		"tax":         t.Tax,
		"total":       t.Total,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k].StringFixed(2))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
