package cart_test

import (
	"context"
	"testing"
	"time"

	"ms-keyshop/internal/cart"
	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetByOwner(ctx context.Context, userID, sessionKey string) (*models.Cart, error) {
	args := m.Called(ctx, userID, sessionKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockDBLayer) GetByID(ctx context.Context, id string) (*models.Cart, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockDBLayer) Insert(ctx context.Context, c models.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockDBLayer) Touch(ctx context.Context, id string, now, expiresAt time.Time) error {
	args := m.Called(ctx, id, now, expiresAt)
	return args.Error(0)
}

func (m *MockDBLayer) BeginConversion(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) MarkConverted(ctx context.Context, id, orderID string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, orderID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) RecoverStuck(ctx context.Context, cutoff, now, guestExpiry, userExpiry time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now, guestExpiry, userExpiry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBLayer) ExpireGuestCarts(ctx context.Context, cutoff, now time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBLayer) ExpireUserCarts(ctx context.Context, cutoff, now time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBLayer) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func newTestService(db cart.DBLayer) *cart.Service {
	return cart.NewService(db, 7*24*time.Hour, 30*24*time.Hour, logger.NewLogger())
}

func TestTouchOrCreateCreatesGuestCart(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("GetByOwner", mock.Anything, "", "sess-1").Return(nil, nil)
	mockDB.On("Insert", mock.Anything, mock.MatchedBy(func(c models.Cart) bool {
		return c.SessionKey == "sess-1" && c.IsGuest() && c.Status == models.CartStatusActive
	})).Return(nil)

	service := newTestService(mockDB)
	got, err := service.TouchOrCreate(context.Background(), "", "sess-1")

	assert.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.ExpiresAt.After(time.Now().Add(6*24*time.Hour)))
	mockDB.AssertExpectations(t)
}

func TestTouchOrCreateTouchesExistingUserCart(t *testing.T) {
	existing := &models.Cart{
		ID:         "cart-1",
		UserID:     "user-1",
		SessionKey: "sess-1",
		Status:     models.CartStatusActive,
	}

	mockDB := new(MockDBLayer)
	mockDB.On("GetByOwner", mock.Anything, "user-1", "sess-1").Return(existing, nil)
	mockDB.On("Touch", mock.Anything, "cart-1", mock.Anything, mock.Anything).Return(nil)

	service := newTestService(mockDB)
	got, err := service.TouchOrCreate(context.Background(), "user-1", "sess-1")

	assert.NoError(t, err)
	assert.Equal(t, "cart-1", got.ID)
	// User carts get the 30-day window.
	assert.True(t, got.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))
	mockDB.AssertExpectations(t)
}

func TestBeginConversionConflict(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("BeginConversion", mock.Anything, "cart-1", mock.Anything).Return(false, nil)

	service := newTestService(mockDB)
	err := service.BeginConversion(context.Background(), "cart-1")

	assert.ErrorIs(t, err, cart.ErrCartNotActive)
	mockDB.AssertExpectations(t)
}

func TestMarkConvertedRequiresConverting(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("MarkConverted", mock.Anything, "cart-1", "order-1", mock.Anything).Return(false, nil)

	service := newTestService(mockDB)
	err := service.MarkConverted(context.Background(), "cart-1", "order-1")

	assert.ErrorIs(t, err, cart.ErrCartNotConverting)
	mockDB.AssertExpectations(t)
}

func TestRecoverStuckPassesLockCutoff(t *testing.T) {
	mockDB := new(MockDBLayer)
	now := time.Now()
	mockDB.On("RecoverStuck", mock.Anything,
		now.Add(-5*time.Minute), now, now.Add(7*24*time.Hour), now.Add(30*24*time.Hour)).
		Return(int64(2), nil)

	service := newTestService(mockDB)
	n, err := service.RecoverStuck(context.Background(), now, 5*time.Minute)

	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	mockDB.AssertExpectations(t)
}
