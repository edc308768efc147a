package service

import (
	"context"

	"payment-reconciler/internal/models"

	"go.uber.org/zap"
)

// handleCheckoutCompleted only logs. Subscription-mode sessions are reconciled
// from their own subscription events.
func (r *Router) handleCheckoutCompleted(_ context.Context, env *models.Envelope, session *models.CheckoutSession) error {
	if session.Mode == models.CheckoutModeSubscription {
		r.logger.Info("Subscription checkout completed; awaiting subscription events",
			zap.String("event_id", env.ID),
			zap.String("session_id", session.ID),
			zap.String("subscription_id", session.Subscription.ID))
		return nil
	}

	r.logger.Info("Checkout session completed",
		zap.String("event_id", env.ID),
		zap.String("session_id", session.ID),
		zap.String("mode", session.Mode),
		zap.String("payment_intent_id", session.PaymentIntent.ID))
	return nil
}
