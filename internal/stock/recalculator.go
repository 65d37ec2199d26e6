package stock

import (
	"context"
	"fmt"
	"time"

	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"
)

// DBLayer is the store surface the recalculator writes through. It is the
// single writer of derived stock.
type DBLayer interface {
	InventoryReader
	GetVariant(ctx context.Context, id string) (*models.Variant, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	SumActiveReservations(ctx context.Context, variantID string, now time.Time) (int, error)
	SumSiblingStock(ctx context.Context, productID, exceptVariantID string) (int, error)
	PersistDerived(ctx context.Context, variant *models.Variant, product *models.Product) error
}

// StockCache receives derived stock for fast storefront reads. Failures
// are logged, never escalated.
type StockCache interface {
	SetStock(ctx context.Context, variantID string, qty int) error
}

// EventPublisher announces stock changes to downstream consumers.
type EventPublisher interface {
	PublishStockChanged(variantID string, oldStock, newStock int, status models.CatalogStatus) error
}

// Result reports what one recalculation did.
type Result struct {
	VariantID  string
	Applicable bool
	OldStock   int
	NewStock   int
	OldStatus  models.CatalogStatus
	NewStatus  models.CatalogStatus
}

// Changed reports whether the recalculation moved stock or status.
func (r Result) Changed() bool {
	return r.Applicable && (r.OldStock != r.NewStock || r.OldStatus != r.NewStatus)
}

// Recalculator derives a variant's sellable quantity from raw inventory
// minus active reservations and propagates status to the variant and its
// parent product. Idempotent and safe to call redundantly.
type Recalculator struct {
	DB       DBLayer
	Cache    StockCache     // optional
	Events   EventPublisher // optional
	counters map[models.ProductType]shapeCounter
	logger   *logger.Logger
}

func NewRecalculator(db DBLayer, cache StockCache, events EventPublisher, log *logger.Logger) *Recalculator {
	return &Recalculator{
		DB:       db,
		Cache:    cache,
		Events:   events,
		counters: newShapeCounters(db),
		logger:   log,
	}
}

// Recalculate recomputes one variant's derived stock. An unsupported
// product type is a no-op (Applicable=false), not an error.
func (r *Recalculator) Recalculate(ctx context.Context, variantID string) (Result, error) {
	now := time.Now()

	variant, err := r.DB.GetVariant(ctx, variantID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load variant %s: %w", variantID, err)
	}

	counter, ok := r.counters[variant.ProductType]
	if !ok {
		return Result{VariantID: variantID, Applicable: false}, nil
	}

	raw, err := counter.Raw(ctx, variantID, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute raw capacity for variant %s: %w", variantID, err)
	}

	reserved, err := r.DB.SumActiveReservations(ctx, variantID, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to sum reservations for variant %s: %w", variantID, err)
	}

	newStock := raw - reserved
	if newStock < 0 {
		// Oversell became visible: clamp and alarm, never persist negative.
		r.logger.Warn("STOCK", fmt.Sprintf("variant %s oversold: raw=%d reserved=%d", variantID, raw, reserved))
		newStock = 0
	}

	result := Result{
		VariantID:  variantID,
		Applicable: true,
		OldStock:   variant.StockQty,
		NewStock:   newStock,
		OldStatus:  variant.Status,
		NewStatus:  deriveStatus(variant.Status, newStock),
	}

	variant.StockQty = newStock
	variant.Status = result.NewStatus
	variant.UpdatedAt = now

	product, err := r.DB.GetProduct(ctx, variant.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load product %s: %w", variant.ProductID, err)
	}

	siblingStock, err := r.DB.SumSiblingStock(ctx, variant.ProductID, variantID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to sum sibling stock for product %s: %w", variant.ProductID, err)
	}

	productStock := siblingStock + newStock
	if productStock < 0 {
		productStock = 0
	}
	product.Status = deriveStatus(product.Status, productStock)
	product.StockQty = productStock
	product.UpdatedAt = now

	if err := r.DB.PersistDerived(ctx, variant, product); err != nil {
		return Result{}, fmt.Errorf("failed to persist derived stock for variant %s: %w", variantID, err)
	}

	if r.Cache != nil {
		if err := r.Cache.SetStock(ctx, variantID, newStock); err != nil {
			r.logger.Warn("STOCK", fmt.Sprintf("failed to cache stock for variant %s: %v", variantID, err))
		}
	}

	if r.Events != nil && result.Changed() {
		if err := r.Events.PublishStockChanged(variantID, result.OldStock, result.NewStock, result.NewStatus); err != nil {
			r.logger.Warn("KAFKA", fmt.Sprintf("failed to publish stock change for variant %s: %v", variantID, err))
		}
	}

	if result.Changed() {
		r.logger.LogStock(variantID, fmt.Sprintf("stock %d -> %d, status %s -> %s",
			result.OldStock, result.NewStock, result.OldStatus, result.NewStatus))
	}

	return result, nil
}

// deriveStatus applies the status rule: Inactive is sticky, otherwise the
// sign of the derived stock decides.
func deriveStatus(current models.CatalogStatus, stock int) models.CatalogStatus {
	if current == models.CatalogStatusInactive {
		return current
	}
	if stock <= 0 {
		return models.CatalogStatusOutOfStock
	}
	return models.CatalogStatusActive
}
