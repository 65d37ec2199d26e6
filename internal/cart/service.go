package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"

	"github.com/google/uuid"
)

var (
	ErrCartNotActive     = errors.New("cart is not active")
	ErrCartNotConverting = errors.New("cart is not converting")
)

type DBLayer interface {
	GetByOwner(ctx context.Context, userID, sessionKey string) (*models.Cart, error)
	GetByID(ctx context.Context, id string) (*models.Cart, error)
	Insert(ctx context.Context, cart models.Cart) error
	Touch(ctx context.Context, id string, now, expiresAt time.Time) error
	BeginConversion(ctx context.Context, id string, now time.Time) (bool, error)
	MarkConverted(ctx context.Context, id, orderID string, now time.Time) (bool, error)
	RecoverStuck(ctx context.Context, cutoff, now, guestExpiry, userExpiry time.Time) (int64, error)
	ExpireGuestCarts(ctx context.Context, cutoff, now time.Time) (int64, error)
	ExpireUserCarts(ctx context.Context, cutoff, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service owns cart state transitions and the TTL policy. Converting is a
// soft checkout lock; RecoverStuck breaks locks left behind by a crashed
// checkout.
type Service struct {
	DB       DBLayer
	GuestTTL time.Duration
	UserTTL  time.Duration
	logger   *logger.Logger
}

func NewService(db DBLayer, guestTTL, userTTL time.Duration, log *logger.Logger) *Service {
	return &Service{DB: db, GuestTTL: guestTTL, UserTTL: userTTL, logger: log}
}

func (s *Service) ttl(userID string) time.Duration {
	if userID == "" {
		return s.GuestTTL
	}
	return s.UserTTL
}

// TouchOrCreate returns the owner's active cart, creating one on first
// touch. Every touch stamps updated_at and pushes expires_at out.
func (s *Service) TouchOrCreate(ctx context.Context, userID, sessionKey string) (*models.Cart, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl(userID))

	cart, err := s.DB.GetByOwner(ctx, userID, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}
	if cart != nil {
		if err := s.DB.Touch(ctx, cart.ID, now, expiresAt); err != nil {
			return nil, fmt.Errorf("failed to touch cart %s: %w", cart.ID, err)
		}
		cart.UpdatedAt = now
		cart.ExpiresAt = expiresAt
		return cart, nil
	}

	cart = &models.Cart{
		ID:         uuid.NewString(),
		UserID:     userID,
		SessionKey: sessionKey,
		Status:     models.CartStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	if err := s.DB.Insert(ctx, *cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	s.logger.LogCart("CREATE", cart.ID, "cart created")
	return cart, nil
}

// BeginConversion moves the cart into Converting. A cart that is already
// converting, expired or missing yields ErrCartNotActive so the caller can
// surface a checkout conflict.
func (s *Service) BeginConversion(ctx context.Context, cartID string) error {
	ok, err := s.DB.BeginConversion(ctx, cartID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to begin conversion for cart %s: %w", cartID, err)
	}
	if !ok {
		return ErrCartNotActive
	}
	s.logger.LogCart("CONVERT", cartID, "checkout started")
	return nil
}

// MarkConverted records the order the cart turned into. Set at most once.
func (s *Service) MarkConverted(ctx context.Context, cartID, orderID string) error {
	ok, err := s.DB.MarkConverted(ctx, cartID, orderID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark cart %s converted: %w", cartID, err)
	}
	if !ok {
		return ErrCartNotConverting
	}
	s.logger.LogCart("CONVERTED", cartID, "converted to order "+orderID)
	return nil
}

// RecoverStuck reverts carts stuck in Converting past lockTimeout back to
// Active with a fresh expiry. Called by the reconciler every tick.
func (s *Service) RecoverStuck(ctx context.Context, now time.Time, lockTimeout time.Duration) (int64, error) {
	cutoff := now.Add(-lockTimeout)
	n, err := s.DB.RecoverStuck(ctx, cutoff, now, now.Add(s.GuestTTL), now.Add(s.UserTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stuck carts: %w", err)
	}
	if n > 0 {
		s.logger.LogSweep("STUCK-CARTS", fmt.Sprintf("recovered %d carts stuck in converting", n))
	}
	return n, nil
}
