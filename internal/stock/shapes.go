package stock

import (
	"context"
	"time"

	"ms-keyshop/internal/models"
)

// InventoryReader is the slice of the store the shape counters need.
type InventoryReader interface {
	CountAvailableKeys(ctx context.Context, variantID string, now time.Time) (int, error)
	ListActiveAccounts(ctx context.Context, variantID string, now time.Time) ([]models.Account, error)
	CountActiveCustomers(ctx context.Context, accountIDs []string) (map[string]int, error)
}

// shapeCounter computes a variant's raw capacity for one inventory shape.
// One implementation per product type keeps the dispatch typed instead of
// reflective.
type shapeCounter interface {
	Raw(ctx context.Context, variantID string, now time.Time) (int, error)
}

// keyCounter: single-use license keys. One unit per available, unassigned,
// unexpired key.
type keyCounter struct {
	inv InventoryReader
}

func (c keyCounter) Raw(ctx context.Context, variantID string, now time.Time) (int, error) {
	return c.inv.CountAvailableKeys(ctx, variantID, now)
}

// personalAccountCounter: single-tenant accounts. An account counts only
// while it has no active customer at all.
type personalAccountCounter struct {
	inv InventoryReader
}

func (c personalAccountCounter) Raw(ctx context.Context, variantID string, now time.Time) (int, error) {
	accounts, err := c.inv.ListActiveAccounts(ctx, variantID, now)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	occupied, err := c.inv.CountActiveCustomers(ctx, ids)
	if err != nil {
		return 0, err
	}

	raw := 0
	for _, a := range accounts {
		if occupied[a.ID] == 0 {
			raw++
		}
	}
	return raw, nil
}

// sharedAccountCounter: multi-seat accounts. Each account contributes its
// free seats, floored at zero in case of overbooked rows.
type sharedAccountCounter struct {
	inv InventoryReader
}

func (c sharedAccountCounter) Raw(ctx context.Context, variantID string, now time.Time) (int, error) {
	accounts, err := c.inv.ListActiveAccounts(ctx, variantID, now)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	occupied, err := c.inv.CountActiveCustomers(ctx, ids)
	if err != nil {
		return 0, err
	}

	raw := 0
	for _, a := range accounts {
		free := a.MaxUsers - occupied[a.ID]
		if free > 0 {
			raw += free
		}
	}
	return raw, nil
}

func newShapeCounters(inv InventoryReader) map[models.ProductType]shapeCounter {
	return map[models.ProductType]shapeCounter{
		models.ProductTypePersonalKey:     keyCounter{inv: inv},
		models.ProductTypePersonalAccount: personalAccountCounter{inv: inv},
		models.ProductTypeSharedAccount:   sharedAccountCounter{inv: inv},
	}
}
