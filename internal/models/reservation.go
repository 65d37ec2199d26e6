package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusFinalized ReservationStatus = "finalized"
)

// Reservation is a time-boxed hold of quantity against a variant, tied to
// one order. Reserved rows transition to Released or Finalized only; both
// are terminal. Released rows are kept for audit.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID            string            `bun:"id,pk" json:"id"`
	OrderID       string            `bun:"order_id,notnull" json:"order_id"`
	VariantID     string            `bun:"variant_id,notnull" json:"variant_id"`
	Quantity      int               `bun:"quantity,notnull" json:"quantity"`
	Status        ReservationStatus `bun:"status,notnull" json:"status"`
	ReservedUntil time.Time         `bun:"reserved_until,notnull" json:"reserved_until"`
	CreatedAt     time.Time         `bun:"created_at,notnull" json:"created_at"`
	ClosedAt      time.Time         `bun:"closed_at,nullzero" json:"closed_at,omitempty"`
}

// ReservationLine is one (variant, quantity) pair of a reserve request.
type ReservationLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}
