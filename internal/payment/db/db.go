package db

import (
	"context"
	"time"

	"ms-keyshop/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ListTimedOutPending returns Pending attempts created before the cutoff
// that have a target to act on.
func (d *DB) ListTimedOutPending(ctx context.Context, cutoff time.Time) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := d.Bun.NewSelect().
		Model(&attempts).
		Where("status = ?", models.PaymentStatusPending).
		Where("created_at < ?", cutoff).
		Where("target_id IS NOT NULL").
		Where("target_id != ''").
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// MarkTimeout moves one attempt Pending -> Timeout. The status predicate
// keeps the transition forward-only under concurrent reconcilers.
func (d *DB) MarkTimeout(ctx context.Context, attemptID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.PaymentAttempt)(nil)).
		Set("status = ?", models.PaymentStatusTimeout).
		Set("updated_at = ?", now).
		Where("id = ?", attemptID).
		Where("status = ?", models.PaymentStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasOtherActiveAttempt reports whether a sibling attempt for the same
// target could still succeed.
func (d *DB) HasOtherActiveAttempt(ctx context.Context, targetType models.PaymentTargetType, targetID, excludeID string) (bool, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.PaymentAttempt)(nil)).
		Where("target_type = ?", targetType).
		Where("target_id = ?", targetID).
		Where("id != ?", excludeID).
		Where("status IN (?)", bun.In(models.ActivePaymentStatuses)).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DB) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrderByTimeout cancels an order still waiting on payment. Returns
// false when the order already left pending_payment.
func (d *DB) CancelOrderByTimeout(ctx context.Context, orderID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusCancelledByTimeout).
		Set("updated_at = ?", now).
		Where("id = ?", orderID).
		Where("status = ?", models.OrderStatusPendingPayment).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
