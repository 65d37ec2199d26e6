package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPendingPayment     OrderStatus = "pending_payment"
	OrderStatusPaid               OrderStatus = "paid"
	OrderStatusCompleted          OrderStatus = "completed"
	OrderStatusCancelled          OrderStatus = "cancelled"
	OrderStatusCancelledByTimeout OrderStatus = "cancelled_by_timeout"
)

// Order is the join point between payment outcomes and reservation
// disposition. It is created at checkout in pending_payment.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID        string      `bun:"id,pk" json:"id"`
	UserID    string      `bun:"user_id,nullzero" json:"user_id,omitempty"`
	CartID    string      `bun:"cart_id,nullzero" json:"cart_id,omitempty"`
	Status    OrderStatus `bun:"status,notnull" json:"status"`
	Total     float64     `bun:"total,notnull" json:"total"`
	CreatedAt time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
