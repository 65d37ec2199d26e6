package payment

import (
	"context"
	"fmt"
	"time"

	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/models"
)

type DBLayer interface {
	ListTimedOutPending(ctx context.Context, cutoff time.Time) ([]models.PaymentAttempt, error)
	MarkTimeout(ctx context.Context, attemptID string, now time.Time) (bool, error)
	HasOtherActiveAttempt(ctx context.Context, targetType models.PaymentTargetType, targetID, excludeID string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrderByTimeout(ctx context.Context, orderID string, now time.Time) (bool, error)
}

type CartRecoverer interface {
	RecoverStuck(ctx context.Context, now time.Time, lockTimeout time.Duration) (int64, error)
}

type ReservationReleaser interface {
	Release(ctx context.Context, orderID string, now time.Time) error
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

type EventPublisher interface {
	PublishOrderCancelled(order models.Order) error
}

// Reconciler is the periodic loop that keeps carts, orders, payments and
// reservations converging: it recovers carts stuck mid-checkout, releases
// expired inventory holds, and times out stale pending payments, cascading
// to order cancellation when no sibling attempt can still win.
type Reconciler struct {
	DB           DBLayer
	Carts        CartRecoverer
	Reservations ReservationReleaser
	Gateway      Gateway
	Events       EventPublisher // optional

	Interval        time.Duration
	PaymentTimeout  time.Duration
	CartLockTimeout time.Duration

	logger *logger.Logger
}

func NewReconciler(db DBLayer, carts CartRecoverer, reservations ReservationReleaser, gateway Gateway,
	events EventPublisher, interval, paymentTimeout, cartLockTimeout time.Duration, log *logger.Logger) *Reconciler {
	return &Reconciler{
		DB:              db,
		Carts:           carts,
		Reservations:    reservations,
		Gateway:         gateway,
		Events:          events,
		Interval:        interval,
		PaymentTimeout:  paymentTimeout,
		CartLockTimeout: cartLockTimeout,
		logger:          log,
	}
}

// Run ticks until the context is cancelled. An in-flight tick finishes
// rather than being aborted mid-write.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("RECONCILER", fmt.Sprintf("payment timeout reconciler started (interval %s)", r.Interval))

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("RECONCILER", "payment timeout reconciler stopped")
			return
		case now := <-ticker.C:
			r.safeTick(ctx, now)
		}
	}
}

// safeTick keeps one bad tick from killing the loop.
func (r *Reconciler) safeTick(ctx context.Context, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("RECONCILER", fmt.Sprintf("tick panicked: %v", rec))
		}
	}()
	r.Tick(ctx, now)
}

// Tick runs one full reconciliation pass: stuck-cart recovery, expired
// reservation sweep, payment timeout sweep. Each stage logs its own
// failures so the others still run.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) {
	if _, err := r.Carts.RecoverStuck(ctx, now, r.CartLockTimeout); err != nil {
		r.logger.Error("RECONCILER", fmt.Sprintf("stuck-cart recovery failed: %v", err))
	}

	if _, err := r.Reservations.ReleaseExpired(ctx, now); err != nil {
		r.logger.Error("RECONCILER", fmt.Sprintf("reservation sweep failed: %v", err))
	}

	r.sweepPayments(ctx, now)
}

func (r *Reconciler) sweepPayments(ctx context.Context, now time.Time) {
	attempts, err := r.DB.ListTimedOutPending(ctx, now.Add(-r.PaymentTimeout))
	if err != nil {
		r.logger.Error("RECONCILER", fmt.Sprintf("payment timeout query failed: %v", err))
		return
	}
	if len(attempts) == 0 {
		return
	}

	r.logger.LogSweep("PAYMENTS", fmt.Sprintf("timing out %d stale pending attempts", len(attempts)))
	for _, attempt := range attempts {
		// Per-row isolation: one poisoned attempt must not stop the sweep.
		if err := r.timeoutAttempt(ctx, attempt, now); err != nil {
			r.logger.Error("RECONCILER", fmt.Sprintf("failed to time out attempt %s: %v", attempt.ID, err))
		}
	}
}

func (r *Reconciler) timeoutAttempt(ctx context.Context, attempt models.PaymentAttempt, now time.Time) error {
	if attempt.ExternalLinkID != "" {
		// Best effort; a gateway failure never blocks the timeout.
		if err := r.Gateway.CancelLink(ctx, attempt.ExternalLinkID, "payment timed out"); err != nil {
			r.logger.Warn("RECONCILER", fmt.Sprintf("gateway cancel failed for attempt %s: %v", attempt.ID, err))
		}
	}

	ok, err := r.DB.MarkTimeout(ctx, attempt.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark attempt timed out: %w", err)
	}
	if !ok {
		// Another reconciler or a webhook got there first.
		return nil
	}

	if attempt.TargetType != models.PaymentTargetOrder {
		return nil
	}
	return r.cascadeToOrder(ctx, attempt, now)
}

// cascadeToOrder cancels the order and releases its inventory, but only
// when no sibling attempt could still pay it. The check races against
// concurrently inserted attempts; the window is accepted and biased toward
// keeping the sale alive.
func (r *Reconciler) cascadeToOrder(ctx context.Context, attempt models.PaymentAttempt, now time.Time) error {
	order, err := r.DB.GetOrder(ctx, attempt.TargetID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", attempt.TargetID, err)
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil
	}

	active, err := r.DB.HasOtherActiveAttempt(ctx, attempt.TargetType, attempt.TargetID, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to check sibling attempts for order %s: %w", attempt.TargetID, err)
	}
	if active {
		r.logger.LogOrder("TIMEOUT", order.ID, "another attempt is still active, leaving order alone")
		return nil
	}

	cancelled, err := r.DB.CancelOrderByTimeout(ctx, order.ID, now)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", order.ID, err)
	}
	if !cancelled {
		return nil
	}

	r.logger.LogOrder("TIMEOUT", order.ID, "order cancelled by payment timeout")
	if err := r.Reservations.Release(ctx, order.ID, now); err != nil {
		return fmt.Errorf("failed to release reservations for order %s: %w", order.ID, err)
	}

	if r.Events != nil {
		order.Status = models.OrderStatusCancelledByTimeout
		if err := r.Events.PublishOrderCancelled(*order); err != nil {
			r.logger.Warn("KAFKA", fmt.Sprintf("failed to publish cancellation of order %s: %v", order.ID, err))
		}
	}
	return nil
}
