package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zayyarwin/mmshop/internal/config"
	"github.com/zayyarwin/mmshop/internal/logging"
	"github.com/zayyarwin/mmshop/internal/order"
)

var (
	// ErrPaymentInitiation covers any failure of the auth/encrypt/token
	// steps or a transport failure of the pay step.
	ErrPaymentInitiation = errors.New("payment initiation failed")
	// ErrPaymentExecution is a pay response whose body code is not the
	// provider's success code.
	ErrPaymentExecution = errors.New("payment execution failed")
)

// payAcceptedCode is the provider's in-body success code for the pay call.
// HTTP 200 alone means nothing.
const payAcceptedCode = "000"

// Gateway drives the provider's four-step handshake:
// auth -> encrypt -> token -> pay. All provider-specific schema and
// cryptography stays behind this type.
type Gateway struct {
	cfg   config.Dinger
	http  *http.Client
	audit *slog.Logger
}

func NewGateway(cfg config.Dinger, audit *slog.Logger) *Gateway {
	if audit == nil {
		audit = logging.Discard()
	}
	return &Gateway{
		cfg:   cfg,
		http:  &http.Client{Timeout: 10 * time.Second},
		audit: audit,
	}
}

// PayResponse is the pay endpoint's body. Field names are the provider's
// published contract; renaming any of them breaks the integration.
type PayResponse struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Response PayResult `json:"response"`
}

type PayResult struct {
	TransactionNum string `json:"transactionNum"`
}

type payloadItem struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`
}

type payPayload struct {
	ProviderName  string  `json:"providerName"`
	MethodName    string  `json:"methodName"`
	TotalAmount   float64 `json:"totalAmount"`
	Items         string  `json:"items"` // JSON-encoded array, per contract
	OrderID       string  `json:"orderId"`
	CustomerName  string  `json:"customerName"`
	CustomerPhone string  `json:"customerPhone"`
	Description   string  `json:"description"`
	Email         string  `json:"email,omitempty"`
	BillAddress   string  `json:"billAddress,omitempty"`
	BillCity      string  `json:"billCity,omitempty"`
}

// Initiate runs the full handshake for one order. Any step failure aborts
// the whole operation; the order itself stays pending and retryable.
func (g *Gateway) Initiate(ctx context.Context, ord *order.Order, items []order.Item, req TokenRequest, customerName, customerPhone string) (*PayResponse, error) {
	authToken, err := g.getEncryptionToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := g.buildPayload(ord, items, req, customerName, customerPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: build payload: %v", ErrPaymentInitiation, err)
	}

	encrypted, err := g.encryptPayload(ctx, authToken, payload)
	if err != nil {
		return nil, err
	}

	paymentToken, err := g.fetchPaymentToken(ctx)
	if err != nil {
		return nil, err
	}

	return g.executePayment(ctx, ord.OrderID, paymentToken, encrypted)
}

func (g *Gateway) buildPayload(ord *order.Order, items []order.Item, req TokenRequest, customerName, customerPhone string) ([]byte, error) {
	lines := make([]payloadItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, payloadItem{
			Name:     it.ProductName,
			Amount:   it.Price.InexactFloat64(),
			Quantity: it.Quantity,
		})
	}
	rawItems, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}

	p := payPayload{
		ProviderName:  req.ProviderName,
		MethodName:    req.Method(),
		TotalAmount:   ord.TotalAmount.InexactFloat64(),
		Items:         string(rawItems),
		OrderID:       ord.OrderID,
		CustomerName:  customerName,
		CustomerPhone: NormalizePhone(customerPhone),
		Description:   g.cfg.ProjectName,
	}
	if req.IsCard() {
		p.Email = req.Email
		p.BillAddress = req.BillAddress
		p.BillCity = req.BillCity
	}
	return json.Marshal(p)
}

func (g *Gateway) getEncryptionToken(ctx context.Context) (string, error) {
	body, err := g.postJSON(ctx, g.cfg.AuthURL, "", map[string]string{
		"email":    g.cfg.EncryptionEmail,
		"password": g.cfg.EncryptionPassword,
	})
	if err != nil {
		return "", fmt.Errorf("%w: auth: %v", ErrPaymentInitiation, err)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		g.audit.Error("encryption auth returned no token", "body", string(body))
		return "", fmt.Errorf("%w: auth service returned no token", ErrPaymentInitiation)
	}
	return out.Token, nil
}

func (g *Gateway) encryptPayload(ctx context.Context, authToken string, payload []byte) (string, error) {
	body, err := g.postJSON(ctx, g.cfg.EncryptURL, authToken, map[string]string{
		"data":      string(payload),
		"publicKey": g.cfg.PublicKey,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encrypt: %v", ErrPaymentInitiation, err)
	}
	var out struct {
		EncryptedData string `json:"encrypted_data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.EncryptedData == "" {
		g.audit.Error("payload encryption returned no ciphertext", "body", string(body))
		return "", fmt.Errorf("%w: encryption service returned no ciphertext", ErrPaymentInitiation)
	}
	return out.EncryptedData, nil
}

func (g *Gateway) fetchPaymentToken(ctx context.Context) (string, error) {
	u, err := url.Parse(g.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("%w: token url: %v", ErrPaymentInitiation, err)
	}
	q := u.Query()
	q.Set("projectName", g.cfg.ProjectName)
	q.Set("apiKey", g.cfg.APIKey)
	q.Set("merchantName", g.cfg.MerchantName)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrPaymentInitiation, err)
	}
	body, err := g.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrPaymentInitiation, err)
	}
	var out struct {
		Response struct {
			PaymentToken string `json:"paymentToken"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Response.PaymentToken == "" {
		g.audit.Error("payment token fetch failed", "body", string(body))
		return "", fmt.Errorf("%w: no payment token in response", ErrPaymentInitiation)
	}
	return out.Response.PaymentToken, nil
}

func (g *Gateway) executePayment(ctx context.Context, orderID, paymentToken, encrypted string) (*PayResponse, error) {
	form := url.Values{"payload": {encrypted}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.PayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: pay: %v", ErrPaymentInitiation, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+paymentToken)

	body, err := g.do(req)
	if err != nil {
		g.audit.Error("pay call failed", "order_id", orderID, "error", err.Error())
		return nil, fmt.Errorf("%w: pay: %v", ErrPaymentInitiation, err)
	}

	var out PayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		g.audit.Error("pay response unreadable", "order_id", orderID, "body", string(body))
		return nil, fmt.Errorf("%w: pay response unreadable", ErrPaymentInitiation)
	}
	g.audit.Info("pay response", "order_id", orderID, "code", out.Code, "transaction_num", out.Response.TransactionNum)

	if out.Code != payAcceptedCode {
		return nil, fmt.Errorf("%w: code=%s message=%s", ErrPaymentExecution, out.Code, out.Message)
	}
	return &out, nil
}

func (g *Gateway) postJSON(ctx context.Context, endpoint, bearer string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return g.do(req)
}

func (g *Gateway) do(req *http.Request) ([]byte, error) {
	res, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, body)
	}
	return body, nil
}
