package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*domain.Order, error)
	GetOrderByExternalID(ctx context.Context, externalOrderID string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error)
	SetExternalPaymentOrder(ctx context.Context, id uuid.UUID, externalOrderID string) error
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	ExpireAbandonedOrders(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
	OrderStats(ctx context.Context) (*domain.OrderStats, error)
}

const orderColumns = `id, user_id, status, payment_status, payment_method, total_amount, discount_amount,
	final_amount, currency, shipping_address, items, idempotency_key, external_payment_order_id,
	external_payment_id, paid_at, created_at, updated_at`

// orderEvent is the payload written to the outbox for every order change.
type orderEvent struct {
	OrderID       uuid.UUID            `json:"order_id"`
	UserID        int64                `json:"user_id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	FinalAmount   decimal.Decimal      `json:"final_amount"`
	Currency      string               `json:"currency"`
	Items         []domain.OrderItem   `json:"items,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order           domain.Order
		shippingJSON    []byte
		itemsJSON       []byte
		idempotencyKey  sql.NullString
		externalOrderID sql.NullString
		externalPayID   sql.NullString
		paidAt          sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentMethod,
		&order.TotalAmount,
		&order.DiscountAmount,
		&order.FinalAmount,
		&order.Currency,
		&shippingJSON,
		&itemsJSON,
		&idempotencyKey,
		&externalOrderID,
		&externalPayID,
		&paidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	order.IdempotencyKey = idempotencyKey.String
	if externalOrderID.Valid {
		order.ExternalPaymentOrderID = &externalOrderID.String
	}
	if externalPayID.Valid {
		order.ExternalPaymentID = &externalPayID.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		order.PaidAt = &t
	}
	return &order, nil
}

// CreateOrder stores the order together with its order.created outbox event.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	var idempotencyKey sql.NullString
	if order.IdempotencyKey != "" {
		idempotencyKey = sql.NullString{String: order.IdempotencyKey, Valid: true}
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (id, user_id, status, payment_status, payment_method, total_amount,
			discount_amount, final_amount, currency, shipping_address, items, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			RETURNING created_at, updated_at`

		insertErr := tx.QueryRowContext(ctx, query,
			order.ID,
			order.UserID,
			order.Status,
			order.PaymentStatus,
			order.PaymentMethod,
			order.TotalAmount,
			order.DiscountAmount,
			order.FinalAmount,
			order.Currency,
			string(shippingJSON),
			string(itemsJSON),
			idempotencyKey,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if insertErr != nil {
			if pqErr, ok := isUniqueViolation(insertErr); ok && pqErr.Constraint == "orders_user_idempotency_key" {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("insert order: %w", insertErr)
		}

		return insertOrderEvent(ctx, tx, domain.EventOrderCreated, order)
	})
}

func insertOrderEvent(ctx context.Context, tx *sql.Tx, eventType string, order *domain.Order) error {
	event := orderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		FinalAmount:   order.FinalAmount,
		Currency:      order.Currency,
		OccurredAt:    time.Now().UTC(),
	}
	if eventType == domain.EventOrderCreated {
		event.Items = order.Items
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		order.ID.String(), eventType, string(payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) getOrder(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s`, orderColumns, where)
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, "id = $1", id)
}

func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*domain.Order, error) {
	return r.getOrder(ctx, "user_id = $1 AND idempotency_key = $2", userID, key)
}

func (r *Repository) GetOrderByExternalID(ctx context.Context, externalOrderID string) (*domain.Order, error) {
	return r.getOrder(ctx, "external_payment_order_id = $1", externalOrderID)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, orderColumns)
	return r.queryOrders(ctx, query, userID)
}

func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Status != "" {
		query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			orderColumns)
		return r.queryOrders(ctx, query, filter.Status, limit, filter.Offset)
	}
	query := fmt.Sprintf(`SELECT %s FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, orderColumns)
	return r.queryOrders(ctx, query, limit, filter.Offset)
}

func (r *Repository) SetExternalPaymentOrder(ctx context.Context, id uuid.UUID, externalOrderID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET external_payment_order_id = $2, updated_at = NOW() WHERE id = $1`,
		id, externalOrderID)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return ErrConflict
		}
		return fmt.Errorf("set external payment order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set external payment order: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderPaid finalizes an online payment and emits order.paid. Only an
// order still PENDING/PENDING is updated; any other order is returned
// unchanged, so a cancelled or expired order stays cancelled.
func (r *Repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (*domain.Order, error) {
	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE orders SET payment_status = $2, status = $3, external_payment_id = $4,
			paid_at = $5, updated_at = NOW()
			WHERE id = $1 AND status = $6 AND payment_status = $7
			RETURNING %s`, orderColumns)

		var err error
		order, err = scanOrder(tx.QueryRowContext(ctx, query,
			id,
			domain.PaymentStatusPaid,
			domain.OrderStatusConfirmed,
			paymentID,
			paidAt,
			domain.OrderStatusPending,
			domain.PaymentStatusPending,
		))
		if errors.Is(err, sql.ErrNoRows) {
			order = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		return insertOrderEvent(ctx, tx, domain.EventOrderPaid, order)
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return r.GetOrderByID(ctx, id)
	}
	return order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING %s`,
			orderColumns)
		var err error
		order, err = scanOrder(tx.QueryRowContext(ctx, query, id, status))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return insertOrderEvent(ctx, tx, domain.EventOrderStatus, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ExpireAbandonedOrders cancels online orders still waiting for payment that
// were created before olderThan.
func (r *Repository) ExpireAbandonedOrders(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW()
			WHERE status = $3 AND payment_status = $4 AND created_at < $5
			RETURNING %s`, orderColumns)

		rows, err := tx.QueryContext(ctx, query,
			domain.OrderStatusCancelled,
			domain.PaymentStatusFailed,
			domain.OrderStatusPending,
			domain.PaymentStatusPending,
			olderThan,
		)
		if err != nil {
			return fmt.Errorf("expire abandoned orders: %w", err)
		}

		var orders []*domain.Order
		for rows.Next() {
			order, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan expired order: %w", err)
			}
			orders = append(orders, order)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("row iteration error: %w", err)
		}
		rows.Close()

		for _, order := range orders {
			if err := insertOrderEvent(ctx, tx, domain.EventOrderExpired, order); err != nil {
				return err
			}
			expired = append(expired, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// OrderStats counts orders per status. Revenue covers paid and COD orders
// that were not cancelled.
func (r *Repository) OrderStats(ctx context.Context) (*domain.OrderStats, error) {
	stats := &domain.OrderStats{
		ByStatus: make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
		Revenue:  decimal.Zero,
	}
	for _, s := range domain.OrderStatuses {
		stats.ByStatus[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query order counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	var revenue decimal.NullDecimal
	err = r.db.QueryRowContext(ctx, `SELECT SUM(final_amount) FROM orders
		WHERE payment_status IN ($1, $2) AND status <> $3`,
		domain.PaymentStatusPaid, domain.PaymentStatusCOD, domain.OrderStatusCancelled,
	).Scan(&revenue)
	if err != nil {
		return nil, fmt.Errorf("query revenue: %w", err)
	}
	if revenue.Valid {
		stats.Revenue = revenue.Decimal
	}
	return stats, nil
}
