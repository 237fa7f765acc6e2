package payment

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// providerMethods is the provider/method compatibility table published by
// the aggregator. A token request outside this table never reaches the wire.
var providerMethods = map[string][]string{
	"AYA Pay":     {"QR", "PIN"},
	"OK$":         {"PIN"},
	"Sai Sai Pay": {"PIN"},
	"Onepay":      {"PIN"},
	"MPitesan":    {"PIN"},
	"MPT Pay":     {"PIN"},
	"CB Pay":      {"QR"},
	"UAB Pay":     {"PIN"},
	"KBZ Pay":     {"QR", "PWA"},
	"Wave Pay":    {"PIN"},
	"Visa":        {"OTP"},
	"Master":      {"OTP"},
	"JCB":         {"OTP"},
}

var cardProviders = map[string]bool{"Visa": true, "Master": true, "JCB": true}

// TokenRequest is the inbound payment-token request.
// swagger:model PaymentTokenRequest
type TokenRequest struct {
	OrderID       string `json:"order_id"`
	ProviderName  string `json:"providerName"`
	MethodName    string `json:"methodName"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Email         string `json:"email"`
	BillAddress   string `json:"billAddress"`
	BillCity      string `json:"billCity"`
}

// Method returns the canonical method name used on the wire.
func (r *TokenRequest) Method() string {
	return strings.ToUpper(strings.TrimSpace(r.MethodName))
}

func (r *TokenRequest) IsCard() bool { return cardProviders[r.ProviderName] }

// Validate enforces the compatibility table, the card-only required fields
// and the phone format, all before any order or provider call happens.
func (r *TokenRequest) Validate() error {
	if r.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", ErrValidation)
	}

	methods, ok := providerMethods[r.ProviderName]
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrValidation, r.ProviderName)
	}
	method := r.Method()
	allowed := false
	for _, m := range methods {
		if m == method {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: method %q is invalid for %s", ErrValidation, r.MethodName, r.ProviderName)
	}

	if r.CustomerPhone != "" && (method == "PIN" || method == "PWA" || method == "OTP") {
		if !ValidLocalPhone(NormalizePhone(r.CustomerPhone)) {
			return fmt.Errorf("%w: phone must normalize to 11 digits starting with 09", ErrValidation)
		}
	}

	if r.IsCard() {
		if r.Email == "" {
			return fmt.Errorf("%w: email is required for card payments", ErrValidation)
		}
		if r.BillAddress == "" {
			return fmt.Errorf("%w: billing address is required for card payments", ErrValidation)
		}
		if r.BillCity == "" {
			return fmt.Errorf("%w: billing city is required for card payments", ErrValidation)
		}
	}
	return nil
}
