package payment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"ms-keyshop/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// Gateway is the external payment gateway at its cancellation boundary.
// The reconciler treats cancellation as best effort: an error is logged by
// the caller and never blocks timing an attempt out.
type Gateway interface {
	CancelLink(ctx context.Context, linkID, reason string) error
}

// StripeGateway implements Gateway over the Stripe API. Payment links are
// either Checkout Sessions (cs_...) which get expired, or Payment Intents
// which get cancelled.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(log *logger.Logger) (*StripeGateway, error) {
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(stripeKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	return &StripeGateway{client: sc, log: log}, nil
}

func (g *StripeGateway) CancelLink(ctx context.Context, linkID, reason string) error {
	g.log.Info("STRIPE", fmt.Sprintf("Cancelling payment link %s (%s)", linkID, reason))

	if strings.HasPrefix(linkID, "cs_") {
		params := &stripe.CheckoutSessionExpireParams{}
		params.Context = ctx
		if _, err := g.client.CheckoutSessions.Expire(linkID, params); err != nil {
			return fmt.Errorf("failed to expire checkout session %s: %w", linkID, err)
		}
		return nil
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(linkID, params); err != nil {
		return fmt.Errorf("failed to cancel payment intent %s: %w", linkID, err)
	}
	return nil
}
