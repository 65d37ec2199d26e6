package cart

import (
	"context"
	"fmt"
	"time"

	"ms-keyshop/internal/logger"
)

// CleanupScheduler is the coarse maintenance loop over carts: it expires
// stale guest and user carts and hard-deletes carts that have been Expired
// past the grace window. It never touches reservations; those are released
// independently by the reconciler.
type CleanupScheduler struct {
	DB       DBLayer
	Interval time.Duration
	GuestTTL time.Duration
	UserTTL  time.Duration
	Grace    time.Duration
	logger   *logger.Logger
}

func NewCleanupScheduler(db DBLayer, interval, guestTTL, userTTL, grace time.Duration, log *logger.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		DB:       db,
		Interval: interval,
		GuestTTL: guestTTL,
		UserTTL:  userTTL,
		Grace:    grace,
		logger:   log,
	}
}

// Run executes one pass immediately, then one per interval until the
// context is cancelled. An in-flight pass is allowed to finish.
func (c *CleanupScheduler) Run(ctx context.Context) {
	c.logger.Info("CLEANUP", fmt.Sprintf("cart cleanup scheduler started (interval %s)", c.Interval))

	c.safeRunOnce(ctx, time.Now())

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("CLEANUP", "cart cleanup scheduler stopped")
			return
		case now := <-ticker.C:
			c.safeRunOnce(ctx, now)
		}
	}
}

func (c *CleanupScheduler) safeRunOnce(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("CLEANUP", fmt.Sprintf("cleanup pass panicked: %v", r))
		}
	}()
	if err := c.RunOnce(ctx, now); err != nil {
		c.logger.Error("CLEANUP", fmt.Sprintf("cleanup pass failed: %v", err))
	}
}

// RunOnce performs the three set-based updates of one cleanup pass.
func (c *CleanupScheduler) RunOnce(ctx context.Context, now time.Time) error {
	expired, err := c.DB.ExpireGuestCarts(ctx, now.Add(-c.GuestTTL), now)
	if err != nil {
		return fmt.Errorf("failed to expire guest carts: %w", err)
	}
	if expired > 0 {
		c.logger.LogSweep("CART-CLEANUP", fmt.Sprintf("expired %d guest carts", expired))
	}

	expired, err = c.DB.ExpireUserCarts(ctx, now.Add(-c.UserTTL), now)
	if err != nil {
		return fmt.Errorf("failed to expire user carts: %w", err)
	}
	if expired > 0 {
		c.logger.LogSweep("CART-CLEANUP", fmt.Sprintf("expired %d user carts", expired))
	}

	deleted, err := c.DB.DeleteExpired(ctx, now.Add(-c.Grace))
	if err != nil {
		return fmt.Errorf("failed to delete expired carts: %w", err)
	}
	if deleted > 0 {
		c.logger.LogSweep("CART-CLEANUP", fmt.Sprintf("hard-deleted %d expired carts", deleted))
	}

	return nil
}
