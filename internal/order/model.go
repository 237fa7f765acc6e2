package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle stage.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// Financial settlement outcome, driven by the provider callback.
const (
	PaymentPending   = "pending"
	PaymentSuccess   = "success"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// PaymentTransitionAllowed reports whether payment_status may move from
// current to next. success is final. A failed or cancelled attempt is
// retryable: it may move forward to a fresh pending attempt or settle as
// success, but it never regresses and identical replays are dropped.
func PaymentTransitionAllowed(current, next string) bool {
	switch current {
	case PaymentSuccess:
		return false
	case PaymentFailed, PaymentCancelled:
		return next == PaymentPending || next == PaymentSuccess
	}
	return true
}

type Order struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	// OrderID is the external-facing token the payment provider sees.
	// The numeric ID never leaves this service.
	OrderID       string          `json:"order_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`

	TransactionID *string    `json:"transaction_id,omitempty"`
	ProviderName  *string    `json:"provider_name,omitempty"`
	MethodName    *string    `json:"method_name,omitempty"`
	CompletedAt   *time.Time `json:"payment_completed_at,omitempty"`
	FailedAt      *time.Time `json:"payment_failed_at,omitempty"`
	FailureReason *string    `json:"payment_failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) IsPaid() bool { return o.PaymentStatus == PaymentSuccess }

// Item is a price-at-purchase snapshot; it never changes after creation,
// regardless of later product price edits.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// PaymentUpdate is the full field set ApplyPayment writes in one transaction.
// The service derives it from a payment status plus provider metadata.
type PaymentUpdate struct {
	PaymentStatus string
	Status        string // empty means leave unchanged
	CompletedAt   *time.Time
	FailedAt      *time.Time
	FailureReason string
	TransactionID string
	ProviderName  string
	MethodName    string
}
