package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zayyarwin/mmshop/internal/logging"
	"github.com/zayyarwin/mmshop/internal/order"
	"github.com/zayyarwin/mmshop/internal/user"
)

var (
	ErrAlreadyPaid = errors.New("order is already paid")

	// Callback taxonomy. Integrity failures never mutate any order.
	ErrMalformedCallback = errors.New("malformed callback payload")
	ErrDecryptionFailed  = errors.New("callback decryption failed")
	ErrChecksumMismatch  = errors.New("callback checksum mismatch")
	ErrMissingFields     = errors.New("callback missing required fields")
)

// OrderStore is the slice of the order workflow the payment flows need.
// *order.Service satisfies it; tests substitute an in-memory fake.
type OrderStore interface {
	GetByOrderID(ctx context.Context, orderID string) (*order.Order, error)
	GetByOrderIDAndUser(ctx context.Context, orderID string, userID int64) (*order.Order, error)
	GetItems(ctx context.Context, orderID int64) ([]order.Item, error)
	UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string, info order.PaymentInfo) (*order.Order, error)
}

// UserDirectory resolves the fallback customer name/phone. Optional.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// IdempotencyStore is a best-effort duplicate filter for callback
// deliveries. The database's payment transition gate stays the guarantee;
// this just short-circuits provider retries cheaply. Optional.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
}

type Service struct {
	gw          *Gateway
	orders      OrderStore
	users       UserDirectory
	idem        IdempotencyStore
	callbackKey string
	audit       *slog.Logger
}

func NewService(gw *Gateway, orders OrderStore, users UserDirectory, idem IdempotencyStore, callbackKey string, audit *slog.Logger) *Service {
	if audit == nil {
		audit = logging.Discard()
	}
	return &Service{gw: gw, orders: orders, users: users, idem: idem, callbackKey: callbackKey, audit: audit}
}

// Initiate validates the token request, runs the provider handshake and, on
// success, stamps the order's provider metadata. payment_status stays
// "pending" here: only the callback can settle an order. A handshake failure
// leaves the order untouched and retryable.
func (s *Service) Initiate(ctx context.Context, userID int64, req TokenRequest) (*order.Order, *PayResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	ord, err := s.orders.GetByOrderIDAndUser(ctx, req.OrderID, userID)
	if err != nil {
		return nil, nil, err
	}
	// A paid order is done; a previously failed or cancelled attempt may
	// initiate again, and its success callback settles the order.
	if ord.IsPaid() {
		return nil, nil, ErrAlreadyPaid
	}

	items, err := s.orders.GetItems(ctx, ord.ID)
	if err != nil {
		return nil, nil, err
	}

	customerName, customerPhone := req.CustomerName, req.CustomerPhone
	if (customerName == "" || customerPhone == "") && s.users != nil {
		if u, err := s.users.GetByID(ctx, userID); err == nil {
			if customerName == "" {
				customerName = u.Name
			}
			if customerPhone == "" {
				customerPhone = u.Phone
			}
		}
	}

	resp, err := s.gw.Initiate(ctx, ord, items, req, customerName, customerPhone)
	if err != nil {
		s.audit.Error("payment initiation failed", "order_id", ord.OrderID, "error", err.Error())
		return nil, nil, err
	}

	if resp.Response.TransactionNum != "" {
		ord, err = s.orders.UpdatePaymentStatus(ctx, ord.OrderID, order.PaymentPending, order.PaymentInfo{
			TransactionID: resp.Response.TransactionNum,
			ProviderName:  req.ProviderName,
			MethodName:    req.Method(),
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return ord, resp, nil
}

// Callback verifies, decrypts and reconciles one asynchronous provider
// notification onto its order. The caller is untrusted: authenticity rests
// entirely on the decrypt + checksum pair. Every rejected payload is
// audit-logged in full for forensic replay.
func (s *Service) Callback(ctx context.Context, raw []byte) (*order.Order, error) {
	ord, err := s.reconcile(ctx, raw)
	if err != nil {
		s.audit.Error("callback rejected", "error", err.Error(), "raw", string(raw))
		return nil, err
	}
	return ord, nil
}

func (s *Service) reconcile(ctx context.Context, raw []byte) (*order.Order, error) {
	var env struct {
		PaymentResult string `json:"paymentResult"`
		Checksum      string `json:"checksum"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.PaymentResult == "" || env.Checksum == "" {
		return nil, ErrMalformedCallback
	}

	plaintext, err := decryptAESECB(s.callbackKey, env.PaymentResult)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	// The checksum over the plaintext is the sole authenticity guarantee;
	// a mismatch means tampering or the wrong key, never a state change.
	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, ErrChecksumMismatch
	}

	var result struct {
		TransactionStatus string `json:"transactionStatus"`
		MerchantOrderID   string `json:"merchantOrderId"`
		TransactionID     string `json:"transactionId"`
	}
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return nil, fmt.Errorf("%w: undecodable plaintext", ErrMalformedCallback)
	}
	if result.MerchantOrderID == "" || result.TransactionID == "" {
		return nil, ErrMissingFields
	}

	s.audit.Info("callback decrypted",
		"merchant_order_id", result.MerchantOrderID,
		"transaction_id", result.TransactionID,
		"transaction_status", result.TransactionStatus)

	mapped := mapTransactionStatus(result.TransactionStatus)

	if s.idem != nil {
		key := result.TransactionID + ":" + mapped
		if ok, err := s.idem.TryLock(ctx, "callback", key); err == nil && !ok {
			// Provider retry of an already-applied transition.
			return s.orders.GetByOrderID(ctx, result.MerchantOrderID)
		}
	}

	info := order.PaymentInfo{TransactionID: result.TransactionID}
	if result.TransactionStatus != "SUCCESS" {
		info.FailureReason = "Payment status: " + result.TransactionStatus
	}
	return s.orders.UpdatePaymentStatus(ctx, result.MerchantOrderID, mapped, info)
}

// mapTransactionStatus folds the provider's status vocabulary onto ours.
// Unknown statuses stay pending rather than guessing an outcome.
func mapTransactionStatus(transactionStatus string) string {
	switch transactionStatus {
	case "SUCCESS":
		return order.PaymentSuccess
	case "ERROR", "CANCELLED", "TIMEOUT", "DECLINED", "SYSTEM_ERROR":
		return order.PaymentFailed
	default:
		return order.PaymentPending
	}
}
