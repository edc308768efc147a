package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-reconciler/internal/models"
)

const maxRefundAttempts = 3

// UpdateBooking applies a partial update to a booking. A missing booking is not an error.
func (s *Store) UpdateBooking(ctx context.Context, bookingID string, update models.BookingUpdate) error {
	var b updateBuilder
	if update.Status != nil {
		b.set("status", *update.Status)
	}
	if update.PaymentStatus != nil {
		b.set("payment_status", *update.PaymentStatus)
	}
	if update.PaymentIntentID != nil {
		b.set("payment_intent_id", *update.PaymentIntentID)
	}
	if update.PaymentMethodID != nil {
		b.set("payment_method_id", *update.PaymentMethodID)
	}
	if update.PaymentMethodType != nil {
		b.set("payment_method_type", *update.PaymentMethodType)
	}
	if update.CapturedAmountCents != nil {
		b.set("captured_amount_cents", *update.CapturedAmountCents)
	}
	if update.AuthorizedAmountCents != nil {
		b.set("authorized_amount_cents", *update.AuthorizedAmountCents)
	}
	if update.FailureReason != nil {
		b.set("payment_failure_reason", *update.FailureReason)
	}
	if update.PaidAt != nil {
		b.set("paid_at", *update.PaidAt)
	}
	if b.empty() {
		return nil
	}

	query, args := b.build("bookings", "id", bookingID)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (s *Store) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, `
		SELECT id, status, payment_status, payment_intent_id, payment_method_id, payment_method_type,
			captured_amount_cents, authorized_amount_cents, refund_amount_cents,
			payment_failure_reason, paid_at, updated_at
		FROM bookings WHERE id = $1`, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingRefundState retrieves the refund accounting of a booking
func (s *Store) GetBookingRefundState(ctx context.Context, bookingID string) (*models.RefundState, error) {
	var state models.RefundState
	err := s.db.GetContext(ctx, &state,
		"SELECT id, payment_status, captured_amount_cents, refund_amount_cents FROM bookings WHERE id = $1",
		bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ApplyRefund accumulates a refund onto a booking within a transaction (FOR
// UPDATE lock), so concurrent refund events for one booking serialize.
func (s *Store) ApplyRefund(ctx context.Context, bookingID string, amountCents int64) (*models.RefundState, error) {
	var (
		state *models.RefundState
		err   error
	)
	for attempt := 1; attempt <= maxRefundAttempts; attempt++ {
		state, err = s.applyRefundTx(ctx, bookingID, amountCents)
		if err == nil || !isRetryable(err) {
			break
		}
	}
	return state, err
}

func (s *Store) applyRefundTx(ctx context.Context, bookingID string, amountCents int64) (*models.RefundState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current models.RefundState
	err = tx.GetContext(ctx, &current,
		"SELECT id, payment_status, captured_amount_cents, refund_amount_cents FROM bookings WHERE id = $1 FOR UPDATE",
		bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	next := current.Apply(amountCents)
	if next == current {
		return &next, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE bookings SET refund_amount_cents = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
		next.RefundAmountCents, next.PaymentStatus, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &next, nil
}
