package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-keyshop/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetByOwner finds the cart for a user ID or, for guests, a session key.
// Returns nil without error when no cart exists yet.
func (d *DB) GetByOwner(ctx context.Context, userID, sessionKey string) (*models.Cart, error) {
	var cart models.Cart
	q := d.Bun.NewSelect().Model(&cart)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	} else {
		q = q.Where("(user_id IS NULL OR user_id = '')").Where("session_key = ?", sessionKey)
	}
	err := q.Where("status = ?", models.CartStatusActive).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	err := d.Bun.NewSelect().
		Model(&cart).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (d *DB) Insert(ctx context.Context, cart models.Cart) error {
	_, err := d.Bun.NewInsert().Model(&cart).Exec(ctx)
	return err
}

// Touch stamps updated_at and pushes out expires_at.
func (d *DB) Touch(ctx context.Context, id string, now, expiresAt time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("updated_at = ?", now).
		Set("expires_at = ?", expiresAt).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// BeginConversion moves an Active cart into Converting. Returns false when
// the cart was not Active, so a concurrent checkout loses cleanly.
func (d *DB) BeginConversion(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartStatusConverting).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.CartStatusActive).
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

func (d *DB) MarkConverted(ctx context.Context, id, orderID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("converted_order_id = ?", orderID).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.CartStatusConverting).
		Where("(converted_order_id IS NULL OR converted_order_id = '')").
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

// RecoverStuck reverts Converting carts with no converted order whose lock
// outlived the cutoff back to Active. Guest and user carts get their own
// fresh expiry. Safe to run twice; the predicate only matches stuck rows.
func (d *DB) RecoverStuck(ctx context.Context, cutoff, now, guestExpiry, userExpiry time.Time) (int64, error) {
	var total int64

	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartStatusActive).
		Set("updated_at = ?", now).
		Set("expires_at = ?", guestExpiry).
		Where("status = ?", models.CartStatusConverting).
		Where("(converted_order_id IS NULL OR converted_order_id = '')").
		Where("updated_at < ?", cutoff).
		Where("(user_id IS NULL OR user_id = '')").
		Exec(ctx)
	if err != nil {
		return total, err
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartStatusActive).
		Set("updated_at = ?", now).
		Set("expires_at = ?", userExpiry).
		Where("status = ?", models.CartStatusConverting).
		Where("(converted_order_id IS NULL OR converted_order_id = '')").
		Where("updated_at < ?", cutoff).
		Where("user_id IS NOT NULL").
		Where("user_id != ''").
		Exec(ctx)
	if err != nil {
		return total, err
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}

// ExpireGuestCarts marks stale guest carts Expired: TTL breached since last
// update, or an explicit expires_at already passed.
func (d *DB) ExpireGuestCarts(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartStatusExpired).
		Set("updated_at = ?", now).
		Where("status = ?", models.CartStatusActive).
		Where("(user_id IS NULL OR user_id = '')").
		Where("(updated_at < ? OR (expires_at IS NOT NULL AND expires_at < ?))", cutoff, now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) ExpireUserCarts(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Cart)(nil)).
		Set("status = ?", models.CartStatusExpired).
		Set("updated_at = ?", now).
		Where("status = ?", models.CartStatusActive).
		Where("user_id IS NOT NULL").
		Where("user_id != ''").
		Where("(updated_at < ? OR (expires_at IS NOT NULL AND expires_at < ?))", cutoff, now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired hard-deletes carts that have sat in Expired past the grace
// cutoff.
func (d *DB) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Cart)(nil)).
		Where("status = ?", models.CartStatusExpired).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
