package models

import (
	"time"

	"github.com/uptrace/bun"
)

type KeyStatus string

const (
	KeyStatusAvailable KeyStatus = "available"
	KeyStatusAssigned  KeyStatus = "assigned"
	KeyStatusRevoked   KeyStatus = "revoked"
)

// LicenseKey is a single-use key. It counts toward raw capacity while
// available, unassigned and not expired.
type LicenseKey struct {
	bun.BaseModel `bun:"table:license_keys"`

	ID              string    `bun:"id,pk" json:"id"`
	VariantID       string    `bun:"variant_id,notnull" json:"variant_id"`
	Secret          string    `bun:"secret,notnull" json:"-"`
	Status          KeyStatus `bun:"status,notnull" json:"status"`
	AssignedOrderID string    `bun:"assigned_order_id,nullzero" json:"assigned_order_id,omitempty"`
	ExpiresAt       time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Account backs both the personal and the shared inventory shapes.
// MaxUsers is 1 for personal accounts and >1 for shared ones; the shape
// readers apply the matching counting rule.
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID        string        `bun:"id,pk" json:"id"`
	VariantID string        `bun:"variant_id,notnull" json:"variant_id"`
	Username  string        `bun:"username,notnull" json:"username"`
	Status    AccountStatus `bun:"status,notnull" json:"status"`
	MaxUsers  int           `bun:"max_users,notnull" json:"max_users"`
	ExpiresAt time.Time     `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt time.Time     `bun:"created_at,notnull" json:"created_at"`
}

// AccountCustomer is one customer seat on an account. Only active rows
// consume a seat.
type AccountCustomer struct {
	bun.BaseModel `bun:"table:account_customers"`

	ID         string    `bun:"id,pk" json:"id"`
	AccountID  string    `bun:"account_id,notnull" json:"account_id"`
	CustomerID string    `bun:"customer_id,notnull" json:"customer_id"`
	Active     bool      `bun:"active,notnull" json:"active"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
