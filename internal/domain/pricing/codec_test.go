package pricing

import (
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcart/internal/domain/integrity"
)

func signedScenario(t *testing.T) (*CartSummary, *integrity.Signer) {
	t.Helper()
	signer, err := integrity.NewSigner([]byte("k"))
	require.NoError(t, err)

	s := scenarioSummary()
	s.StoreID = "store-1"
	s.DeliveryMethod = DeliveryDelivery
	s.DeliveryZoneID = "near"
	s.Lines = []PricedLine{{
		CartLine:    CartLine{ItemID: "burger", Quantity: 2, VariantID: "large", AddonIDs: []string{"cheese"}},
		Name:        "Burger",
		CategoryID:  "mains",
		VariantName: "Large",
		Addons:      []PricedAddon{{ID: "cheese", Name: "Cheese", PriceDelta: d("1.50")}},
		UnitPrice:   d("13.50"),
		LineTotal:   d("27.00"),
	}}
	s.Signature = signer.Sign(s.Totals())
	return s, signer
}

func TestCartSummary_Encode(t *testing.T) {
	s, _ := signedScenario(t)
	var e jx.Encoder
	s.Encode(&e)

	assert.JSONEq(t, `{
		"storeId": "store-1",
		"items": [{
			"itemId": "burger", "name": "Burger", "categoryId": "mains", "quantity": 2,
			"selectedVariant": "large", "variantName": "Large",
			"selectedAddons": [{"id": "cheese", "name": "Cheese", "priceDelta": 1.50}],
			"unitPrice": 13.50, "lineTotal": 27.00
		}],
		"subtotal": 27.00,
		"discounts": [{"code": "SAVE10", "kind": "percent", "amount": 2.70}],
		"taxes": [{"name": "Sales Tax", "rate": 8.75, "amount": 2.13}],
		"fees": [{"name": "Service Fee", "rate": 3, "amount": 0.73}],
		"deliveryMethod": "delivery",
		"deliveryZoneId": "near",
		"deliveryFee": 5.00,
		"tip": 0.00,
		"total": 32.16,
		"signature": "`+s.Signature+`"
	}`, e.String())
	assert.Contains(t, e.String(), `"total":32.16`)
}

func TestCartSummary_DecodeKeepsSignatureValid(t *testing.T) {
	s, signer := signedScenario(t)
	var e jx.Encoder
	s.Encode(&e)

	var got CartSummary
	require.NoError(t, got.Decode(jx.DecodeBytes(e.Bytes())))
	require.NoError(t, got.Verify(signer))
	assert.Equal(t, integrity.Canonical(s.Totals()), integrity.Canonical(got.Totals()))

	require.Len(t, got.Lines, 1)
	assert.Equal(t, []string{"cheese"}, got.Lines[0].AddonIDs)
	assert.Equal(t, "Large", got.Lines[0].VariantName)
	assert.Equal(t, DeliveryDelivery, got.DeliveryMethod)
}

func TestCartSummary_DecodeRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		`{"total": "abc"}`,
		`{"items": {}}`,
		`[]`,
	} {
		var s CartSummary
		assert.Error(t, s.Decode(jx.DecodeStr(input)), input)
	}
}

func TestDecodeMoney(t *testing.T) {
	for _, tt := range []struct {
		input string
		want  string
		ok    bool
	}{
		{`12.5`, "12.50", true},
		{`"3.99"`, "3.99", true},
		{`0`, "0.00", true},
		{`"ten"`, "", false},
		{`true`, "", false},
		{`"1.50"`, "1.50", true},
		{`-4.25`, "-4.25", true},
		{`99999999.99`, "99999999.99", true},
		{`"1e20000000"`, "", false},
		{`1e20000000`, "", false},
		{`1e-20000000`, "", false},
		{`100000000`, "", false},
		{`1.005`, "", false},
		{`"000000000000000000000000000000000001"`, "", false},
	} {
		v, err := DecodeMoney(jx.DecodeStr(tt.input))
		if !tt.ok {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, v.StringFixed(2))
	}
}

func TestDecodeMoney_OutOfRangeIsCheap(t *testing.T) {
	start := time.Now()
	_, err := DecodeMoney(jx.DecodeStr(`"1e20000000"`))
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDecodeRate(t *testing.T) {
	v, err := DecodeRate(jx.DecodeStr(`8.875`))
	require.NoError(t, err)
	assert.Equal(t, "8.875", v.String())

	for _, input := range []string{`-1`, `100.5`, `8.8751`, `1e9`} {
		_, err := DecodeRate(jx.DecodeStr(input))
		assert.ErrorIs(t, err, ErrOutOfRange, input)
	}
}

func TestCartSummary_DecodeRejectsHugeQuoteFields(t *testing.T) {
	s, _ := signedScenario(t)
	var e jx.Encoder
	s.Encode(&e)
	for _, field := range []string{`"total":32.16`, `"subtotal":27.00`, `"deliveryFee":5.00`} {
		name := field[:strings.Index(field, ":")]
		tampered := strings.Replace(e.String(), field, name+`:1e20000000`, 1)
		require.NotEqual(t, e.String(), tampered, field)

		var got CartSummary
		err := got.Decode(jx.DecodeStr(tampered))
		assert.ErrorIs(t, err, ErrOutOfRange, field)
	}
}
