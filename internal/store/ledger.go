package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-reconciler/internal/models"
)

// UpsertLedgerEntry creates or updates the ledger entry for (payment intent,
// transaction type). Status always takes the new value; optional fields only
// overwrite when provided.
func (s *Store) UpsertLedgerEntry(ctx context.Context, paymentIntentID, transactionType string, update models.LedgerUpdate) error {
	query := `
		INSERT INTO payment_transactions (
			payment_intent_id, transaction_type, status, booking_id, stripe_charge_id,
			processor_fee_cents, failure_reason, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_intent_id, transaction_type) DO UPDATE SET
			status              = EXCLUDED.status,
			booking_id          = COALESCE(EXCLUDED.booking_id, payment_transactions.booking_id),
			stripe_charge_id    = COALESCE(EXCLUDED.stripe_charge_id, payment_transactions.stripe_charge_id),
			processor_fee_cents = COALESCE(EXCLUDED.processor_fee_cents, payment_transactions.processor_fee_cents),
			failure_reason      = COALESCE(EXCLUDED.failure_reason, payment_transactions.failure_reason),
			completed_at        = COALESCE(EXCLUDED.completed_at, payment_transactions.completed_at),
			updated_at          = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		paymentIntentID, transactionType, update.Status, update.BookingID, update.StripeChargeID,
		update.ProcessorFeeCents, update.FailureReason, update.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntry retrieves the ledger entry for (payment intent, transaction type)
func (s *Store) GetLedgerEntry(ctx context.Context, paymentIntentID, transactionType string) (*models.PaymentTransaction, error) {
	var entry models.PaymentTransaction
	err := s.db.GetContext(ctx, &entry,
		"SELECT * FROM payment_transactions WHERE payment_intent_id = $1 AND transaction_type = $2",
		paymentIntentID, transactionType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLedgerEntryBookingID returns the booking owning the intent's charge entry
func (s *Store) GetLedgerEntryBookingID(ctx context.Context, paymentIntentID string) (string, bool, error) {
	var bookingID sql.NullString
	err := s.db.GetContext(ctx, &bookingID,
		"SELECT booking_id FROM payment_transactions WHERE payment_intent_id = $1 AND transaction_type = $2",
		paymentIntentID, models.TransactionTypeCharge)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return bookingID.String, bookingID.Valid && bookingID.String != "", nil
}
