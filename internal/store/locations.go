package store

import (
	"context"
	"fmt"

	"payment-reconciler/internal/models"
)

// SetLocationsPublicFlag sets the public listing flag on every location of a tenant
func (s *Store) SetLocationsPublicFlag(ctx context.Context, tenantID string, public bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE locations SET is_public = $1, updated_at = NOW() WHERE tenant_id = $2",
		public, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update locations: %w", err)
	}
	return nil
}

// UpdateLocationMerchantAccount stores the connected-account state on a location
func (s *Store) UpdateLocationMerchantAccount(ctx context.Context, locationID string, account models.MerchantAccount) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE locations SET
			stripe_account_id = $1,
			charges_enabled   = $2,
			payouts_enabled   = $3,
			details_submitted = $4,
			merchant_status   = $5,
			updated_at        = NOW()
		WHERE id = $6`,
		account.StripeAccountID, account.ChargesEnabled, account.PayoutsEnabled,
		account.DetailsSubmitted, account.Status, locationID)
	if err != nil {
		return fmt.Errorf("failed to update merchant account: %w", err)
	}
	return nil
}
