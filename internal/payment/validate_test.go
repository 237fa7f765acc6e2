package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRequest_ProviderMethodTable(t *testing.T) {
	ok := []TokenRequest{
		{OrderID: "o", ProviderName: "AYA Pay", MethodName: "QR"},
		{OrderID: "o", ProviderName: "AYA Pay", MethodName: "pin"},
		{OrderID: "o", ProviderName: "KBZ Pay", MethodName: "PWA"},
		{OrderID: "o", ProviderName: "CB Pay", MethodName: " qr "},
		{OrderID: "o", ProviderName: "Wave Pay", MethodName: "PIN"},
	}
	for _, r := range ok {
		assert.NoError(t, r.Validate(), "%s/%s", r.ProviderName, r.MethodName)
	}

	bad := []TokenRequest{
		{OrderID: "o", ProviderName: "AYA Pay", MethodName: "OTP"},
		{OrderID: "o", ProviderName: "CB Pay", MethodName: "PIN"},
		{OrderID: "o", ProviderName: "Visa", MethodName: "QR"},
		{OrderID: "o", ProviderName: "PayPal", MethodName: "PIN"},
		{ProviderName: "AYA Pay", MethodName: "QR"}, // no order_id
	}
	for _, r := range bad {
		assert.ErrorIs(t, r.Validate(), ErrValidation, "%s/%s", r.ProviderName, r.MethodName)
	}
}

func TestTokenRequest_CardRequiredFields(t *testing.T) {
	base := TokenRequest{
		OrderID:      "o",
		ProviderName: "Visa",
		MethodName:   "OTP",
		Email:        "a@b.com",
		BillAddress:  "addr",
		BillCity:     "Yangon",
	}
	require.NoError(t, base.Validate())

	noEmail := base
	noEmail.Email = ""
	assert.ErrorIs(t, noEmail.Validate(), ErrValidation)

	noAddr := base
	noAddr.BillAddress = ""
	assert.ErrorIs(t, noAddr.Validate(), ErrValidation)

	noCity := base
	noCity.BillCity = ""
	assert.ErrorIs(t, noCity.Validate(), ErrValidation)
}

func TestTokenRequest_PhoneValidation(t *testing.T) {
	r := TokenRequest{
		OrderID:       "o",
		ProviderName:  "Wave Pay",
		MethodName:    "PIN",
		CustomerPhone: "+959123456789",
	}
	require.NoError(t, r.Validate())

	r.CustomerPhone = "12345" // cannot normalize to 11 digits
	assert.ErrorIs(t, r.Validate(), ErrValidation)

	// QR methods skip the phone check entirely
	qr := TokenRequest{
		OrderID:       "o",
		ProviderName:  "CB Pay",
		MethodName:    "QR",
		CustomerPhone: "12345",
	}
	assert.NoError(t, qr.Validate())
}
