package service

import (
	"context"
	"fmt"
	"strings"

	"payment-reconciler/internal/models"

	"go.uber.org/zap"
)

func (r *Router) handleAccountUpdated(ctx context.Context, env *models.Envelope, acct *models.Account) error {
	locationID := strings.TrimSpace(acct.Metadata[models.MetadataLocationID])
	if locationID == "" {
		r.skip(env, "missing_location", zap.String("account_id", acct.ID))
		return nil
	}

	account := models.MerchantAccount{
		StripeAccountID:  acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		Status:           DeriveMerchantStatus(acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted),
	}
	if err := r.gateway.UpdateLocationMerchantAccount(ctx, locationID, account); err != nil {
		return fmt.Errorf("failed to update merchant account for location %s: %w", locationID, err)
	}

	r.logger.Info("Merchant account updated",
		zap.String("location_id", locationID),
		zap.String("account_id", acct.ID),
		zap.String("status", account.Status))

	r.publishMerchantAccount(ctx, env, &models.MerchantAccountUpdatedEvent{
		LocationID:      locationID,
		StripeAccountID: acct.ID,
		Status:          account.Status,
	})
	return nil
}
