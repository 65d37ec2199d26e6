package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"
	"ms-keyshop/internal/stock"

	"github.com/google/uuid"
)

var ErrNoLines = errors.New("reserve requires at least one line")

type DBLayer interface {
	InsertReservations(ctx context.Context, reservations []models.Reservation) error
	ExtendByOrder(ctx context.Context, orderID string, until time.Time) (int64, error)
	ReleaseByOrder(ctx context.Context, orderID string, now time.Time) ([]string, error)
	ReleaseExpired(ctx context.Context, now time.Time) ([]string, int64, error)
	FinalizeByOrder(ctx context.Context, orderID string, now time.Time) (int64, error)
	GetByOrder(ctx context.Context, orderID string) ([]models.Reservation, error)
}

type Recalculator interface {
	Recalculate(ctx context.Context, variantID string) (stock.Result, error)
}

type EventPublisher interface {
	PublishReservationReleased(orderID string, variantIDs []string) error
}

// Service is the only writer of the reservation ledger. Every mutation is
// followed by a recalculation of the variants it touched; recalc failures
// are logged rather than escalated, since the next sweep corrects any stale
// stock.
type Service struct {
	DB     DBLayer
	Stock  Recalculator
	Events EventPublisher // optional
	logger *logger.Logger
}

func NewService(db DBLayer, recalc Recalculator, events EventPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Stock: recalc, Events: events, logger: log}
}

// Reserve inserts Reserved rows for each line of the order. Raw capacity is
// not validated here; callers needing a strict guarantee re-check NewStock
// after the recalculation and compensate with Release on violation.
func (s *Service) Reserve(ctx context.Context, orderID string, lines []models.ReservationLine, now, reservedUntil time.Time) error {
	if len(lines) == 0 {
		return ErrNoLines
	}

	reservations := make([]models.Reservation, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("invalid quantity %d for variant %s", line.Quantity, line.VariantID)
		}
		reservations = append(reservations, models.Reservation{
			ID:            uuid.NewString(),
			OrderID:       orderID,
			VariantID:     line.VariantID,
			Quantity:      line.Quantity,
			Status:        models.ReservationStatusReserved,
			ReservedUntil: reservedUntil,
			CreatedAt:     now,
		})
	}

	if err := s.DB.InsertReservations(ctx, reservations); err != nil {
		return fmt.Errorf("failed to reserve inventory for order %s: %w", orderID, err)
	}
	s.logger.LogOrder("RESERVE", orderID, fmt.Sprintf("reserved %d lines until %s", len(lines), reservedUntil.Format(time.RFC3339)))

	for _, line := range lines {
		s.recalculate(ctx, line.VariantID)
	}
	return nil
}

// Extend pushes the order's reservation window out, used while a payment is
// pending but not yet timed out.
func (s *Service) Extend(ctx context.Context, orderID string, newReservedUntil time.Time) error {
	n, err := s.DB.ExtendByOrder(ctx, orderID, newReservedUntil)
	if err != nil {
		return fmt.Errorf("failed to extend reservations for order %s: %w", orderID, err)
	}
	if n > 0 {
		s.logger.LogOrder("EXTEND", orderID, fmt.Sprintf("extended %d reservations until %s", n, newReservedUntil.Format(time.RFC3339)))
	}
	return nil
}

// Release returns all of the order's held inventory to the sellable pool.
func (s *Service) Release(ctx context.Context, orderID string, now time.Time) error {
	variantIDs, err := s.DB.ReleaseByOrder(ctx, orderID, now)
	if err != nil {
		return fmt.Errorf("failed to release reservations for order %s: %w", orderID, err)
	}
	if len(variantIDs) == 0 {
		return nil
	}

	s.logger.LogOrder("RELEASE", orderID, fmt.Sprintf("released reservations on %d variants", len(variantIDs)))
	for _, variantID := range variantIDs {
		s.recalculate(ctx, variantID)
	}
	s.publishReleased(orderID, variantIDs)
	return nil
}

// ReleaseExpired sweeps every Reserved row whose window has passed, across
// all orders, and recalculates each distinct variant touched.
func (s *Service) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	variantIDs, n, err := s.DB.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired reservations: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	s.logger.LogSweep("RESERVATIONS", fmt.Sprintf("released %d expired reservations on %d variants", n, len(variantIDs)))
	for _, variantID := range variantIDs {
		s.recalculate(ctx, variantID)
	}
	s.publishReleased("", variantIDs)
	return n, nil
}

// Finalize converts the order's holds into consumed inventory after payment
// confirmation. Finalized rows stop counting as reserved but never return
// to the pool; the raw inventory rows are expected to have been assigned by
// the confirming flow.
func (s *Service) Finalize(ctx context.Context, orderID string, now time.Time) error {
	reservations, err := s.DB.GetByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load reservations for order %s: %w", orderID, err)
	}

	n, err := s.DB.FinalizeByOrder(ctx, orderID, now)
	if err != nil {
		return fmt.Errorf("failed to finalize reservations for order %s: %w", orderID, err)
	}
	if n == 0 {
		return nil
	}

	s.logger.LogOrder("FINALIZE", orderID, fmt.Sprintf("finalized %d reservations", n))
	seen := make(map[string]bool)
	for _, r := range reservations {
		if !seen[r.VariantID] {
			seen[r.VariantID] = true
			s.recalculate(ctx, r.VariantID)
		}
	}
	return nil
}

func (s *Service) recalculate(ctx context.Context, variantID string) {
	if _, err := s.Stock.Recalculate(ctx, variantID); err != nil {
		s.logger.Error("RESERVATION", fmt.Sprintf("failed to recalculate variant %s: %v", variantID, err))
	}
}

func (s *Service) publishReleased(orderID string, variantIDs []string) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishReservationReleased(orderID, variantIDs); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("failed to publish reservation release: %v", err))
	}
}
