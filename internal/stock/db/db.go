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

func (d *DB) GetVariant(ctx context.Context, id string) (*models.Variant, error) {
	var variant models.Variant
	err := d.Bun.NewSelect().
		Model(&variant).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (d *DB) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := d.Bun.NewSelect().
		Model(&product).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CountAvailableKeys counts license keys that still back raw capacity:
// available, unassigned, not expired.
func (d *DB) CountAvailableKeys(ctx context.Context, variantID string, now time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.LicenseKey)(nil)).
		Where("variant_id = ?", variantID).
		Where("status = ?", models.KeyStatusAvailable).
		Where("(assigned_order_id IS NULL OR assigned_order_id = '')").
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Count(ctx)
}

// ListActiveAccounts returns the variant's accounts that are active and not
// expired, regardless of seat occupancy.
func (d *DB) ListActiveAccounts(ctx context.Context, variantID string, now time.Time) ([]models.Account, error) {
	var accounts []models.Account
	err := d.Bun.NewSelect().
		Model(&accounts).
		Where("variant_id = ?", variantID).
		Where("status = ?", models.AccountStatusActive).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// CountActiveCustomers returns the number of active customer seats per
// account for the given account IDs. Accounts with no seats are absent from
// the map.
func (d *DB) CountActiveCustomers(ctx context.Context, accountIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(accountIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		AccountID string `bun:"account_id"`
		N         int    `bun:"n"`
	}
	err := d.Bun.NewSelect().
		Model((*models.AccountCustomer)(nil)).
		Column("account_id").
		ColumnExpr("COUNT(*) AS n").
		Where("account_id IN (?)", bun.In(accountIDs)).
		Where("active = ?", true).
		Group("account_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.AccountID] = row.N
	}
	return counts, nil
}

// SumActiveReservations totals reserved quantity still inside its window.
func (d *DB) SumActiveReservations(ctx context.Context, variantID string, now time.Time) (int, error) {
	var sum int
	err := d.Bun.NewSelect().
		Model((*models.Reservation)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("variant_id = ?", variantID).
		Where("status = ?", models.ReservationStatusReserved).
		Where("reserved_until > ?", now).
		Scan(ctx, &sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// SumSiblingStock totals the stored stock of the product's other variants.
func (d *DB) SumSiblingStock(ctx context.Context, productID, exceptVariantID string) (int, error) {
	var sum int
	err := d.Bun.NewSelect().
		Model((*models.Variant)(nil)).
		ColumnExpr("COALESCE(SUM(stock_qty), 0)").
		Where("product_id = ?", productID).
		Where("id != ?", exceptVariantID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// PersistDerived writes the variant's and product's derived stock and
// status in one transaction.
func (d *DB) PersistDerived(ctx context.Context, variant *models.Variant, product *models.Product) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(variant).
			Column("stock_qty", "status", "updated_at").
			Where("id = ?", variant.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model(product).
			Column("stock_qty", "status", "updated_at").
			Where("id = ?", product.ID).
			Exec(ctx)
		return err
	})
}
