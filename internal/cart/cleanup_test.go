package cart_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-keyshop/internal/cart"
	cartdb "ms-keyshop/internal/cart/db"
	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupCleanup(t *testing.T) (*cart.CleanupScheduler, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.Cart)(nil)).Exec(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	scheduler := cart.NewCleanupScheduler(&cartdb.DB{Bun: bunDB},
		24*time.Hour, 7*24*time.Hour, 30*24*time.Hour, 24*time.Hour, logger.NewLogger())
	return scheduler, bunDB
}

func cartStatus(t *testing.T, bunDB *bun.DB, id string) (models.CartStatus, bool) {
	var c models.Cart
	err := bunDB.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(context.Background())
	if err != nil {
		return "", false
	}
	require.NoError(t, err)
	return c.Status, true
}

// An abandoned guest cart is expired by one pass and hard-deleted by a
// pass two days later.
func TestCleanupExpireThenDelete(t *testing.T) {
	scheduler, bunDB := setupCleanup(t)
	ctx := context.Background()
	now := time.Now()

	abandoned := models.Cart{
		ID:         uuid.NewString(),
		SessionKey: "sess-old",
		Status:     models.CartStatusActive,
		CreatedAt:  now.Add(-9 * 24 * time.Hour),
		UpdatedAt:  now.Add(-8 * 24 * time.Hour),
	}
	_, err := bunDB.NewInsert().Model(&abandoned).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, scheduler.RunOnce(ctx, now))

	status, found := cartStatus(t, bunDB, abandoned.ID)
	require.True(t, found)
	assert.Equal(t, models.CartStatusExpired, status)

	require.NoError(t, scheduler.RunOnce(ctx, now.Add(2*24*time.Hour)))

	_, found = cartStatus(t, bunDB, abandoned.ID)
	assert.False(t, found)
}

func TestCleanupLeavesFreshCartsAlone(t *testing.T) {
	scheduler, bunDB := setupCleanup(t)
	ctx := context.Background()
	now := time.Now()

	fresh := models.Cart{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		SessionKey: "sess-1",
		Status:     models.CartStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now.Add(-10 * 24 * time.Hour), // stale for a guest, fine for a user
	}
	_, err := bunDB.NewInsert().Model(&fresh).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, scheduler.RunOnce(ctx, now))

	status, found := cartStatus(t, bunDB, fresh.ID)
	require.True(t, found)
	assert.Equal(t, models.CartStatusActive, status)
}
