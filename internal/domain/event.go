package domain

import "time"

// OutboxEvent is a domain event waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
	EventOrderExpired = "order.expired"
	EventOrderStatus  = "order.status_changed"
)
