package stock_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"
	"ms-keyshop/internal/stock"
	stockdb "ms-keyshop/internal/stock/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

type fixture struct {
	bunDB  *bun.DB
	recalc *stock.Recalculator
}

func setupFixture(t *testing.T) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.Product)(nil),
		(*models.Variant)(nil),
		(*models.LicenseKey)(nil),
		(*models.Account)(nil),
		(*models.AccountCustomer)(nil),
		(*models.Reservation)(nil),
	} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	t.Cleanup(func() { bunDB.Close() })

	recalc := stock.NewRecalculator(&stockdb.DB{Bun: bunDB}, nil, nil, logger.NewLogger())
	return &fixture{bunDB: bunDB, recalc: recalc}
}

func (f *fixture) addProduct(t *testing.T, status models.CatalogStatus) models.Product {
	p := models.Product{
		ID:        uuid.NewString(),
		Name:      "Test Product",
		Status:    status,
		CreatedAt: time.Now(),
	}
	_, err := f.bunDB.NewInsert().Model(&p).Exec(context.Background())
	require.NoError(t, err)
	return p
}

func (f *fixture) addVariant(t *testing.T, productID string, pt models.ProductType, status models.CatalogStatus, stockQty int) models.Variant {
	v := models.Variant{
		ID:          uuid.NewString(),
		ProductID:   productID,
		Name:        "Test Variant",
		ProductType: pt,
		Status:      status,
		StockQty:    stockQty,
		CreatedAt:   time.Now(),
	}
	_, err := f.bunDB.NewInsert().Model(&v).Exec(context.Background())
	require.NoError(t, err)
	return v
}

func (f *fixture) addKeys(t *testing.T, variantID string, n int) {
	for i := 0; i < n; i++ {
		k := models.LicenseKey{
			ID:        uuid.NewString(),
			VariantID: variantID,
			Secret:    "XXXX-YYYY",
			Status:    models.KeyStatusAvailable,
			CreatedAt: time.Now(),
		}
		_, err := f.bunDB.NewInsert().Model(&k).Exec(context.Background())
		require.NoError(t, err)
	}
}

func (f *fixture) addAccount(t *testing.T, variantID string, maxUsers, activeCustomers int) models.Account {
	a := models.Account{
		ID:        uuid.NewString(),
		VariantID: variantID,
		Username:  "acct",
		Status:    models.AccountStatusActive,
		MaxUsers:  maxUsers,
		CreatedAt: time.Now(),
	}
	_, err := f.bunDB.NewInsert().Model(&a).Exec(context.Background())
	require.NoError(t, err)
	for i := 0; i < activeCustomers; i++ {
		c := models.AccountCustomer{
			ID:         uuid.NewString(),
			AccountID:  a.ID,
			CustomerID: uuid.NewString(),
			Active:     true,
			CreatedAt:  time.Now(),
		}
		_, err := f.bunDB.NewInsert().Model(&c).Exec(context.Background())
		require.NoError(t, err)
	}
	return a
}

func (f *fixture) addReservation(t *testing.T, variantID string, qty int, until time.Time) {
	r := models.Reservation{
		ID:            uuid.NewString(),
		OrderID:       uuid.NewString(),
		VariantID:     variantID,
		Quantity:      qty,
		Status:        models.ReservationStatusReserved,
		ReservedUntil: until,
		CreatedAt:     time.Now(),
	}
	_, err := f.bunDB.NewInsert().Model(&r).Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) variant(t *testing.T, id string) models.Variant {
	var v models.Variant
	err := f.bunDB.NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(context.Background())
	require.NoError(t, err)
	return v
}

func (f *fixture) product(t *testing.T, id string) models.Product {
	var p models.Product
	err := f.bunDB.NewSelect().Model(&p).Where("id = ?", id).Limit(1).Scan(context.Background())
	require.NoError(t, err)
	return p
}

func TestRecalculateKeysMinusReservations(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)
	f.addKeys(t, v.ID, 3)
	f.addReservation(t, v.ID, 2, time.Now().Add(5*time.Minute))

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, result.Applicable)
	assert.Equal(t, 1, result.NewStock)
	assert.Equal(t, models.CatalogStatusActive, result.NewStatus)

	got := f.variant(t, v.ID)
	assert.Equal(t, 1, got.StockQty)
}

func TestRecalculateExpiredReservationFreesStock(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)
	f.addKeys(t, v.ID, 3)
	// Window already passed: the hold no longer counts even before the
	// release sweep flips its status.
	f.addReservation(t, v.ID, 2, time.Now().Add(-1*time.Minute))

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewStock)
}

func TestRecalculateSharedAccountSeats(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypeSharedAccount, models.CatalogStatusActive, 0)
	// Two accounts with 5 seats each, 3 occupied: 2 + 2 free seats.
	f.addAccount(t, v.ID, 5, 3)
	f.addAccount(t, v.ID, 5, 3)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, result.NewStock)
}

func TestRecalculatePersonalAccountOccupiedDoesNotCount(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalAccount, models.CatalogStatusActive, 0)
	f.addAccount(t, v.ID, 1, 0)
	f.addAccount(t, v.ID, 1, 1)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewStock)
}

func TestRecalculateClampsNegativeStock(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)
	f.addKeys(t, v.ID, 1)
	f.addReservation(t, v.ID, 3, time.Now().Add(5*time.Minute))

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewStock)
	assert.Equal(t, models.CatalogStatusOutOfStock, result.NewStatus)

	got := f.variant(t, v.ID)
	assert.GreaterOrEqual(t, got.StockQty, 0)
}

func TestRecalculateInactiveStatusIsSticky(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusInactive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusInactive, 0)
	f.addKeys(t, v.ID, 5)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, result.NewStock)
	assert.Equal(t, models.CatalogStatusInactive, result.NewStatus)
	assert.Equal(t, models.CatalogStatusInactive, f.product(t, p.ID).Status)
}

func TestRecalculateClearsStaleOutOfStock(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusOutOfStock)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusOutOfStock, 0)
	f.addKeys(t, v.ID, 2)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewStock)
	assert.Equal(t, models.CatalogStatusActive, result.NewStatus)
	assert.Equal(t, models.CatalogStatusActive, f.product(t, p.ID).Status)
}

func TestRecalculateUnsupportedTypeIsNoop(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductType("bundle"), models.CatalogStatusActive, 7)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, result.Applicable)

	// Nothing was persisted.
	got := f.variant(t, v.ID)
	assert.Equal(t, 7, got.StockQty)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)
	f.addKeys(t, v.ID, 4)
	f.addReservation(t, v.ID, 1, time.Now().Add(5*time.Minute))

	first, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	second, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)

	assert.Equal(t, first.NewStock, second.NewStock)
	assert.Equal(t, first.NewStatus, second.NewStatus)
	assert.Equal(t, second.OldStock, second.NewStock)
}

func TestRecalculateAggregatesProductStock(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v1 := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)
	f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 6)
	f.addKeys(t, v1.ID, 2)

	_, err := f.recalc.Recalculate(ctx, v1.ID)
	require.NoError(t, err)

	// Product stock = freshly computed v1 (2) + stored v2 (6).
	got := f.product(t, p.ID)
	assert.Equal(t, 8, got.StockQty)
	assert.Equal(t, models.CatalogStatusActive, got.Status)
}

func TestRecalculateProductOutOfStockWhenAllVariantsEmpty(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	p := f.addProduct(t, models.CatalogStatusActive)
	v := f.addVariant(t, p.ID, models.ProductTypePersonalKey, models.CatalogStatusActive, 0)

	result, err := f.recalc.Recalculate(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewStock)
	assert.Equal(t, models.CatalogStatusOutOfStock, result.NewStatus)
	assert.Equal(t, models.CatalogStatusOutOfStock, f.product(t, p.ID).Status)
}
