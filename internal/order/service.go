package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zayyarwin/mmshop/internal/events"
	"github.com/zayyarwin/mmshop/internal/product"
)

var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrNoItems            = errors.New("order needs at least one item")
)

// PaymentInfo carries provider metadata alongside a payment transition.
// Empty fields are left untouched on the order row.
type PaymentInfo struct {
	TransactionID string
	ProviderName  string
	MethodName    string
	FailureReason string
}

// Service is the order workflow engine: it validates items against
// inventory, snapshots prices and drives status/payment_status transitions.
// Nothing else mutates those fields.
type Service struct {
	products product.Repository
	orders   Repository
	events   events.Sink
}

func NewService(products product.Repository, orders Repository, sink events.Sink) *Service {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{products: products, orders: orders, events: sink}
}

type createdItemPayload struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

type orderCreatedPayload struct {
	OrderID     string               `json:"order_id"`
	UserID      int64                `json:"user_id"`
	TotalAmount string               `json:"total_amount"`
	Items       []createdItemPayload `json:"items"`
}

// CreateOrder runs the whole creation workflow. The repository commit is
// atomic: either the order, its items and every stock decrement land
// together, or nothing does.
func (s *Service) CreateOrder(ctx context.Context, userID int64, reqs []CreateOrderItem) (*Order, []Item, error) {
	if len(reqs) == 0 {
		return nil, nil, ErrNoItems
	}

	total := decimal.Zero
	items := make([]Item, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, nil, fmt.Errorf("product %d: %w", req.ProductID, ErrInvalidQuantity)
		}
		p, err := s.products.GetByID(ctx, req.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("product %d: %w", req.ProductID, err)
		}
		if !p.Available() {
			return nil, nil, fmt.Errorf("product %q: %w", p.Name, ErrProductUnavailable)
		}
		if !p.HasStock(req.Quantity) {
			return nil, nil, fmt.Errorf("product %q: %w", p.Name, ErrInsufficientStock)
		}

		// Unit price snapshot; rounding happens here, once, and is never
		// reapplied downstream.
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2)
		total = total.Add(subtotal)

		items = append(items, Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    req.Quantity,
			Price:       p.Price,
			Subtotal:    subtotal,
		})
	}

	o := &Order{
		UserID:        userID,
		OrderID:       NewOrderID(userID),
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
	}
	if err := s.orders.Create(ctx, o, items); err != nil {
		return nil, nil, err
	}

	payload := orderCreatedPayload{
		OrderID:     o.OrderID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.StringFixed(2),
	}
	for _, it := range items {
		payload.Items = append(payload.Items, createdItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
			Subtotal:  it.Subtotal.StringFixed(2),
		})
	}
	_ = s.events.Emit(ctx, o.OrderID, events.OrderCreated, payload)

	return o, items, nil
}

// NewOrderID builds the external order token. The timestamp and user id keep
// it greppable in provider dashboards; the uuid makes collisions negligible
// and the orders.order_id unique constraint is the backstop.
func NewOrderID(userID int64) string {
	return fmt.Sprintf("ORDER-%d-%d-%s", time.Now().Unix(), userID, uuid.NewString())
}

// UpdateOrderStatus is a direct transition with no gate beyond existence.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status string) (*Order, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, id)
}

// UpdatePaymentStatus is the single state-transition point for settlement
// outcomes; the gateway adapter and the callback reconciler both go through
// it. success is final: replaying an outcome is a no-op and a conflicting
// late transition is ignored (and logged). A failed attempt stays retryable
// and settles when a later attempt succeeds.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string, info PaymentInfo) (*Order, error) {
	upd := PaymentUpdate{
		PaymentStatus: paymentStatus,
		TransactionID: info.TransactionID,
		ProviderName:  info.ProviderName,
		MethodName:    info.MethodName,
	}
	now := time.Now()
	switch paymentStatus {
	case PaymentSuccess:
		upd.CompletedAt = &now
		upd.Status = StatusProcessing
	case PaymentFailed, PaymentCancelled:
		upd.FailedAt = &now
		upd.Status = StatusFailed
		upd.FailureReason = info.FailureReason
	case PaymentPending:
		// metadata only
	default:
		return nil, fmt.Errorf("%w: payment status %q", ErrInvalidStatus, paymentStatus)
	}

	o, applied, err := s.orders.ApplyPayment(ctx, orderID, upd)
	if err != nil {
		return nil, err
	}
	if !applied && o.PaymentStatus != paymentStatus {
		log.Printf("[order] ignoring stale payment transition order_id=%s current=%s incoming=%s",
			orderID, o.PaymentStatus, paymentStatus)
	}
	if applied {
		switch paymentStatus {
		case PaymentPending:
			// Only the initiation stamp carries the provider; a callback
			// that maps to pending does not.
			if info.ProviderName != "" {
				_ = s.events.Emit(ctx, o.OrderID, events.PaymentInitiated, map[string]string{
					"order_id":       o.OrderID,
					"transaction_id": info.TransactionID,
					"provider":       info.ProviderName,
					"method":         info.MethodName,
				})
			}
		case PaymentSuccess:
			_ = s.events.Emit(ctx, o.OrderID, events.PaymentSucceeded, map[string]string{
				"order_id":       o.OrderID,
				"transaction_id": info.TransactionID,
			})
		case PaymentFailed, PaymentCancelled:
			_ = s.events.Emit(ctx, o.OrderID, events.PaymentFailed, map[string]string{
				"order_id": o.OrderID,
				"reason":   info.FailureReason,
			})
		}
	}
	return o, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByOrderID(ctx, orderID)
}

func (s *Service) GetByOrderIDAndUser(ctx context.Context, orderID string, userID int64) (*Order, error) {
	return s.orders.GetByOrderIDAndUser(ctx, orderID, userID)
}

func (s *Service) GetItems(ctx context.Context, orderID int64) ([]Item, error) {
	return s.orders.GetItems(ctx, orderID)
}

func (s *Service) List(ctx context.Context, q Query) ([]Order, error) {
	return s.orders.List(ctx, q)
}
