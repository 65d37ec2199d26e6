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

func (d *DB) InsertReservations(ctx context.Context, reservations []models.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&reservations).Exec(ctx)
		return err
	})
}

// ExtendByOrder pushes reserved_until out for the order's live holds.
func (d *DB) ExtendByOrder(ctx context.Context, orderID string, until time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("reserved_until = ?", until).
		Where("order_id = ?", orderID).
		Where("status = ?", models.ReservationStatusReserved).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseByOrder moves the order's Reserved rows to Released and returns
// the distinct variants touched. Released is terminal; the predicate makes
// a second call a no-op.
func (d *DB) ReleaseByOrder(ctx context.Context, orderID string, now time.Time) ([]string, error) {
	variantIDs, err := d.distinctReservedVariants(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("order_id = ?", orderID)
	})
	if err != nil {
		return nil, err
	}

	_, err = d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.ReservationStatusReleased).
		Set("closed_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", models.ReservationStatusReserved).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return variantIDs, nil
}

// ReleaseExpired releases every Reserved row across all orders whose window
// has passed, in one set-based update.
func (d *DB) ReleaseExpired(ctx context.Context, now time.Time) ([]string, int64, error) {
	variantIDs, err := d.distinctReservedVariants(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("reserved_until < ?", now)
	})
	if err != nil {
		return nil, 0, err
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.ReservationStatusReleased).
		Set("closed_at = ?", now).
		Where("status = ?", models.ReservationStatusReserved).
		Where("reserved_until < ?", now).
		Exec(ctx)
	if err != nil {
		return nil, 0, err
	}
	n, _ := res.RowsAffected()
	return variantIDs, n, nil
}

// FinalizeByOrder converts the order's holds into consumed inventory once
// payment is confirmed.
func (d *DB) FinalizeByOrder(ctx context.Context, orderID string, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.ReservationStatusFinalized).
		Set("closed_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", models.ReservationStatusReserved).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) GetByOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("order_id = ?", orderID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (d *DB) distinctReservedVariants(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]string, error) {
	var variantIDs []string
	q := d.Bun.NewSelect().
		Model((*models.Reservation)(nil)).
		ColumnExpr("DISTINCT variant_id").
		Where("status = ?", models.ReservationStatusReserved)
	err := filter(q).Scan(ctx, &variantIDs)
	if err != nil {
		return nil, err
	}
	return variantIDs, nil
}
