package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Query struct {
	UserID        int64 // 0 means all users
	Status        string
	PaymentStatus string
	Limit         int
	Offset        int
}

type Repository interface {
	// Create persists the order with its items and decrements stock for
	// every line, all inside one transaction. A line whose guarded
	// decrement affects zero rows aborts the whole transaction with
	// ErrInsufficientStock.
	Create(ctx context.Context, o *Order, items []Item) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	GetByOrderIDAndUser(ctx context.Context, orderID string, userID int64) (*Order, error)
	GetItems(ctx context.Context, orderID int64) ([]Item, error)
	List(ctx context.Context, q Query) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	// ApplyPayment applies a payment transition under a row lock.
	// applied=false means the gate skipped the write (the transition was
	// not allowed from the current payment status, see
	// PaymentTransitionAllowed); the returned order is the current row
	// either way.
	ApplyPayment(ctx context.Context, orderID string, upd PaymentUpdate) (o *Order, applied bool, err error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `id, user_id, order_id, total_amount::text, status, payment_status,
	provider_transaction_id, provider_name, method_name,
	payment_completed_at, payment_failed_at, payment_failure_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o        Order
		totalRaw string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.OrderID, &totalRaw, &o.Status, &o.PaymentStatus,
		&o.TransactionID, &o.ProviderName, &o.MethodName,
		&o.CompletedAt, &o.FailedAt, &o.FailureReason,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	o.TotalAmount, err = decimal.NewFromString(totalRaw)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) Create(ctx context.Context, o *Order, items []Item) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Guarded decrement first: the WHERE clause makes check-then-decrement
	// atomic per product row, so concurrent orders cannot drive stock
	// below zero.
	for _, it := range items {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1 AND stock >= $2 AND status = 'active'
		`, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientStock
		}
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, order_id, total_amount, status, payment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		RETURNING id, created_at, updated_at
	`, o.UserID, o.OrderID, o.TotalAmount.StringFixed(2), o.Status, o.PaymentStatus).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}

	for i := range items {
		items[i].OrderID = o.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price, subtotal)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, o.ID, items[i].ProductID, items[i].Quantity,
			items[i].Price.StringFixed(2), items[i].Subtotal.StringFixed(2)).
			Scan(&items[i].ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (r *PGRepo) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID))
	if err != nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (r *PGRepo) GetByOrderIDAndUser(ctx context.Context, orderID string, userID int64) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id=$1 AND user_id=$2`, orderID, userID))
	if err != nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (r *PGRepo) GetItems(ctx context.Context, orderID int64) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price::text, oi.subtotal::text
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it          Item
			priceRaw    string
			subtotalRaw string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &priceRaw, &subtotalRaw); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(priceRaw); err != nil {
			return nil, err
		}
		if it.Subtotal, err = decimal.NewFromString(subtotalRaw); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = 0 OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR payment_status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, q.UserID, q.Status, q.PaymentStatus, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ApplyPayment(ctx context.Context, orderID string, upd PaymentUpdate) (*Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock: the initiating client flow and the asynchronous callback
	// may touch the same order; the lock serializes them.
	var current string
	if err := tx.QueryRow(ctx,
		`SELECT payment_status FROM orders WHERE order_id=$1 FOR UPDATE`, orderID).
		Scan(&current); err != nil {
		return nil, false, ErrNotFound
	}

	if !PaymentTransitionAllowed(current, upd.PaymentStatus) {
		// A settled order never regresses and replaying the same outcome
		// is a no-op; return the current row untouched.
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID))
		if err != nil {
			return nil, false, err
		}
		return o, false, tx.Commit(ctx)
	}

	// A success settles the order for good, so any failure trace from an
	// earlier declined attempt is cleared rather than coalesced.
	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET
			payment_status = $2,
			status = COALESCE(NULLIF($3,''), status),
			payment_completed_at = COALESCE($4, payment_completed_at),
			payment_failed_at = CASE WHEN $2 = 'success' THEN NULL ELSE COALESCE($5, payment_failed_at) END,
			payment_failure_reason = CASE WHEN $2 = 'success' THEN NULL ELSE COALESCE(NULLIF($6,''), payment_failure_reason) END,
			provider_transaction_id = COALESCE(NULLIF($7,''), provider_transaction_id),
			provider_name = COALESCE(NULLIF($8,''), provider_name),
			method_name = COALESCE(NULLIF($9,''), method_name),
			updated_at = NOW()
		WHERE order_id = $1
		RETURNING `+orderColumns+`
	`, orderID, upd.PaymentStatus, upd.Status,
		upd.CompletedAt, upd.FailedAt, upd.FailureReason,
		upd.TransactionID, upd.ProviderName, upd.MethodName))
	if err != nil {
		return nil, false, err
	}
	return o, true, tx.Commit(ctx)
}
