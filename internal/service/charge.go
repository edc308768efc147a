package service

import (
	"context"
	"fmt"

	"payment-reconciler/internal/models"
	"payment-reconciler/internal/util"

	"go.uber.org/zap"
)

const defaultChargeFailureMessage = "charge failed"

func (r *Router) handleChargeSucceeded(ctx context.Context, env *models.Envelope, ch *models.Charge) error {
	intentID := ch.PaymentIntent.ID
	if intentID == "" {
		r.skip(env, "missing_payment_intent", zap.String("charge_id", ch.ID))
		return nil
	}

	update := models.LedgerUpdate{
		Status:         models.TransactionStatusSucceeded,
		StripeChargeID: &ch.ID,
	}
	if ch.BalanceTransaction.ID != "" {
		fee := ch.BalanceTransaction.Fee
		update.ProcessorFeeCents = &fee
	}

	if err := r.gateway.UpsertLedgerEntry(ctx, intentID, models.TransactionTypeCharge, update); err != nil {
		return fmt.Errorf("failed to record charge %s: %w", ch.ID, err)
	}

	r.logger.Info("Charge succeeded",
		zap.String("charge_id", ch.ID),
		zap.String("payment_intent_id", intentID))
	return nil
}

func (r *Router) handleChargeFailed(ctx context.Context, env *models.Envelope, ch *models.Charge) error {
	intentID := ch.PaymentIntent.ID
	if intentID == "" {
		r.skip(env, "missing_payment_intent", zap.String("charge_id", ch.ID))
		return nil
	}

	reason := ch.FailureMessage
	if reason == "" {
		reason = defaultChargeFailureMessage
	}
	update := models.LedgerUpdate{
		Status:         models.TransactionStatusFailed,
		StripeChargeID: &ch.ID,
		FailureReason:  &reason,
	}
	if err := r.gateway.UpsertLedgerEntry(ctx, intentID, models.TransactionTypeCharge, update); err != nil {
		return fmt.Errorf("failed to record failed charge %s: %w", ch.ID, err)
	}

	r.logger.Warn("Charge failed",
		zap.String("charge_id", ch.ID),
		zap.String("payment_intent_id", intentID),
		zap.String("failure_code", ch.FailureCode),
		zap.String("reason", reason))
	return nil
}

// handleChargeRefunded adds the event's refunded amount to the owning
// booking. The accumulation runs as one atomic store operation.
func (r *Router) handleChargeRefunded(ctx context.Context, env *models.Envelope, ch *models.Charge) error {
	intentID := ch.PaymentIntent.ID
	if intentID == "" {
		r.skip(env, "missing_payment_intent", zap.String("charge_id", ch.ID))
		return nil
	}

	bookingID, ok, err := r.gateway.GetLedgerEntryBookingID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("failed to look up ledger entry for payment intent %s: %w", intentID, err)
	}
	if !ok || bookingID == "" {
		r.skip(env, "ledger_entry_not_found", zap.String("payment_intent_id", intentID))
		return nil
	}

	if ch.AmountRefunded <= 0 {
		r.logger.Info("Refund event without refunded amount",
			zap.String("event_id", env.ID),
			zap.String("charge_id", ch.ID))
		return nil
	}

	state, err := r.gateway.ApplyRefund(ctx, bookingID, ch.AmountRefunded)
	if err != nil {
		return fmt.Errorf("failed to apply refund to booking %s: %w", bookingID, err)
	}
	if state == nil {
		r.skip(env, "booking_not_found", zap.String("booking_id", bookingID))
		return nil
	}
	util.RefundsAppliedTotal.Inc()

	completedAt := r.eventTime(env)
	refund := models.LedgerUpdate{
		Status:         models.TransactionStatusSucceeded,
		BookingID:      &bookingID,
		StripeChargeID: &ch.ID,
		CompletedAt:    &completedAt,
	}
	if err := r.gateway.UpsertLedgerEntry(ctx, intentID, models.TransactionTypeRefund, refund); err != nil {
		r.bestEffort(env, "record_refund", err, zap.String("payment_intent_id", intentID))
	}

	r.logger.Info("Refund applied",
		zap.String("booking_id", bookingID),
		zap.String("charge_id", ch.ID),
		zap.Int64("amount_refunded", ch.AmountRefunded),
		zap.Int64("refund_total", state.RefundAmountCents),
		zap.String("payment_status", state.PaymentStatus))

	r.publishBookingPayment(ctx, env, &models.BookingPaymentUpdatedEvent{
		BookingID:         bookingID,
		PaymentIntentID:   intentID,
		PaymentStatus:     state.PaymentStatus,
		AmountCents:       ch.AmountRefunded,
		RefundAmountCents: state.RefundAmountCents,
	})
	return nil
}
