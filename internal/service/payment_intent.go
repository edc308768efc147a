package service

import (
	"context"
	"fmt"
	"strings"

	"payment-reconciler/internal/models"

	"go.uber.org/zap"
)

// handlePaymentIntentSucceeded settles a booking. A manual-capture intent that
// is still waiting for capture is only an authorization and does not confirm
// the booking.
func (r *Router) handlePaymentIntentSucceeded(ctx context.Context, env *models.Envelope, pi *models.PaymentIntent) error {
	bookingID := strings.TrimSpace(pi.Metadata[models.MetadataBookingID])
	if bookingID == "" {
		r.skip(env, "missing_booking", zap.String("payment_intent_id", pi.ID))
		return nil
	}

	completedAt := r.eventTime(env)
	pmType := r.paymentMethodType(ctx, env, pi)
	update := models.BookingUpdate{
		PaymentIntentID:   &pi.ID,
		PaymentMethodType: &pmType,
		PaidAt:            &completedAt,
	}
	if pi.PaymentMethod.ID != "" {
		update.PaymentMethodID = &pi.PaymentMethod.ID
	}

	var amount int64
	paymentStatus, bookingStatus := models.PaymentStatusPaid, models.BookingStatusConfirmed
	if pi.IsManualCapture() && pi.Status == models.IntentStatusRequiresCapture {
		paymentStatus, bookingStatus = models.PaymentStatusAuthorized, models.BookingStatusPending
		amount = pi.AmountCapturable
		if amount == 0 {
			amount = pi.Amount
		}
		update.AuthorizedAmountCents = &amount
		captured := pi.AmountReceived
		update.CapturedAmountCents = &captured
	} else {
		amount = pi.CapturedAmount()
		update.CapturedAmountCents = &amount
	}
	update.PaymentStatus = &paymentStatus
	update.Status = &bookingStatus

	if err := r.gateway.UpdateBooking(ctx, bookingID, update); err != nil {
		return fmt.Errorf("failed to update booking %s: %w", bookingID, err)
	}

	ledger := models.LedgerUpdate{
		Status:      models.TransactionStatusSucceeded,
		BookingID:   &bookingID,
		CompletedAt: &completedAt,
	}
	if pi.LatestCharge.ID != "" {
		ledger.StripeChargeID = &pi.LatestCharge.ID
	}
	if err := r.gateway.UpsertLedgerEntry(ctx, pi.ID, models.TransactionTypeCharge, ledger); err != nil {
		return fmt.Errorf("failed to record charge for payment intent %s: %w", pi.ID, err)
	}

	r.logger.Info("Payment intent succeeded",
		zap.String("booking_id", bookingID),
		zap.String("payment_intent_id", pi.ID),
		zap.String("payment_status", paymentStatus),
		zap.Int64("amount", amount))

	r.publishBookingPayment(ctx, env, &models.BookingPaymentUpdatedEvent{
		BookingID:       bookingID,
		PaymentIntentID: pi.ID,
		Status:          bookingStatus,
		PaymentStatus:   paymentStatus,
		AmountCents:     amount,
	})
	return nil
}

func (r *Router) handlePaymentIntentFailed(ctx context.Context, env *models.Envelope, pi *models.PaymentIntent) error {
	bookingID := strings.TrimSpace(pi.Metadata[models.MetadataBookingID])
	if bookingID == "" {
		r.skip(env, "missing_booking", zap.String("payment_intent_id", pi.ID))
		return nil
	}

	reason := pi.FailureMessage()
	paymentStatus, bookingStatus := models.PaymentStatusFailed, models.BookingStatusCancelled
	update := models.BookingUpdate{
		Status:          &bookingStatus,
		PaymentStatus:   &paymentStatus,
		PaymentIntentID: &pi.ID,
		FailureReason:   &reason,
	}
	if err := r.gateway.UpdateBooking(ctx, bookingID, update); err != nil {
		return fmt.Errorf("failed to update booking %s: %w", bookingID, err)
	}

	completedAt := r.eventTime(env)
	ledger := models.LedgerUpdate{
		Status:        models.TransactionStatusFailed,
		BookingID:     &bookingID,
		FailureReason: &reason,
		CompletedAt:   &completedAt,
	}
	if err := r.gateway.UpsertLedgerEntry(ctx, pi.ID, models.TransactionTypeCharge, ledger); err != nil {
		return fmt.Errorf("failed to record failed charge for payment intent %s: %w", pi.ID, err)
	}

	r.logger.Warn("Payment intent failed",
		zap.String("booking_id", bookingID),
		zap.String("payment_intent_id", pi.ID),
		zap.String("reason", reason))

	r.publishBookingPayment(ctx, env, &models.BookingPaymentUpdatedEvent{
		BookingID:       bookingID,
		PaymentIntentID: pi.ID,
		Status:          bookingStatus,
		PaymentStatus:   paymentStatus,
		Reason:          reason,
	})
	return nil
}

// handlePaymentIntentCapturable records a pre-authorization. The booking
// status is left as is.
func (r *Router) handlePaymentIntentCapturable(ctx context.Context, env *models.Envelope, pi *models.PaymentIntent) error {
	if !pi.IsManualCapture() {
		r.logger.Debug("Ignoring capturable update for automatic capture",
			zap.String("event_id", env.ID),
			zap.String("payment_intent_id", pi.ID))
		return nil
	}

	bookingID := strings.TrimSpace(pi.Metadata[models.MetadataBookingID])
	if bookingID == "" {
		r.skip(env, "missing_booking", zap.String("payment_intent_id", pi.ID))
		return nil
	}

	paymentStatus := models.PaymentStatusAuthorized
	amount := pi.AmountCapturable
	update := models.BookingUpdate{
		PaymentStatus:         &paymentStatus,
		PaymentIntentID:       &pi.ID,
		AuthorizedAmountCents: &amount,
	}
	if err := r.gateway.UpdateBooking(ctx, bookingID, update); err != nil {
		r.bestEffort(env, "authorize_booking", err, zap.String("booking_id", bookingID))
		return nil
	}

	r.logger.Info("Payment authorized",
		zap.String("booking_id", bookingID),
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount_capturable", amount))

	r.publishBookingPayment(ctx, env, &models.BookingPaymentUpdatedEvent{
		BookingID:       bookingID,
		PaymentIntentID: pi.ID,
		PaymentStatus:   paymentStatus,
		AmountCents:     amount,
	})
	return nil
}

// paymentMethodType resolves the method classification from the payload, then
// the processor, defaulting to CARD.
func (r *Router) paymentMethodType(ctx context.Context, env *models.Envelope, pi *models.PaymentIntent) string {
	if pi.PaymentMethod.Type != "" {
		return NormalizePaymentMethodType(pi.PaymentMethod.Type)
	}

	if pi.PaymentMethod.ID != "" && r.processor != nil {
		pmType, err := r.processor.GetPaymentMethodType(ctx, pi.PaymentMethod.ID)
		if err == nil && pmType != "" {
			return NormalizePaymentMethodType(pmType)
		}
		if err != nil {
			r.logger.Warn("Payment method lookup failed",
				zap.String("event_id", env.ID),
				zap.String("payment_method_id", pi.PaymentMethod.ID),
				zap.Error(err))
		}
	}

	if len(pi.PaymentMethodTypes) == 1 {
		return NormalizePaymentMethodType(pi.PaymentMethodTypes[0])
	}
	return models.PaymentMethodCard
}
