package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CartStatus string

const (
	CartStatusActive     CartStatus = "active"
	CartStatusConverting CartStatus = "converting"
	CartStatusExpired    CartStatus = "expired"
)

// Cart is the shopper's working basket. A cart with an empty UserID belongs
// to a guest identified by SessionKey. Converting acts as a soft checkout
// lock; the reconciler reverts carts stuck in that state.
type Cart struct {
	bun.BaseModel `bun:"table:carts"`

	ID               string     `bun:"id,pk" json:"id"`
	UserID           string     `bun:"user_id,nullzero" json:"user_id,omitempty"`
	SessionKey       string     `bun:"session_key,notnull" json:"session_key"`
	Status           CartStatus `bun:"status,notnull" json:"status"`
	ConvertedOrderID string     `bun:"converted_order_id,nullzero" json:"converted_order_id,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updated_at"`
	ExpiresAt        time.Time  `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// IsGuest reports whether the cart has no owning user.
func (c *Cart) IsGuest() bool {
	return c.UserID == ""
}
