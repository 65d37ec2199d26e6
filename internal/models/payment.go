package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusTimeout   PaymentStatus = "timeout"
)

type PaymentTargetType string

const (
	PaymentTargetOrder       PaymentTargetType = "order"
	PaymentTargetSupportPlan PaymentTargetType = "support_plan"
)

// ActivePaymentStatuses are the statuses that block a timeout cancellation
// of the target: as long as a sibling attempt is in one of these, the order
// may still be paid.
var ActivePaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusSuccess,
	PaymentStatusCompleted,
}

// PaymentAttempt records one try against the external gateway. Several
// attempts may exist per target; at most one wins.
type PaymentAttempt struct {
	bun.BaseModel `bun:"table:payment_attempts"`

	ID             string            `bun:"id,pk" json:"id"`
	Provider       string            `bun:"provider,notnull" json:"provider"`
	Status         PaymentStatus     `bun:"status,notnull" json:"status"`
	TargetType     PaymentTargetType `bun:"target_type,notnull" json:"target_type"`
	TargetID       string            `bun:"target_id,notnull" json:"target_id"`
	ExternalLinkID string            `bun:"external_link_id,nullzero" json:"external_link_id,omitempty"`
	CreatedAt      time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time         `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
