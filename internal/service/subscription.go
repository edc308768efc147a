package service

import (
	"context"
	"fmt"
	"strings"

	"payment-reconciler/internal/models"

	"go.uber.org/zap"
)

// handleSubscriptionUpserted mirrors a created or updated subscription onto
// the tenant's billing state.
func (r *Router) handleSubscriptionUpserted(ctx context.Context, env *models.Envelope, sub *models.Subscription) error {
	tenantID := strings.TrimSpace(sub.Metadata[models.MetadataTenantID])
	planTier := strings.TrimSpace(sub.Metadata[models.MetadataPlanTier])
	if tenantID == "" || planTier == "" {
		r.skip(env, "missing_tenant_or_plan", zap.String("subscription_id", sub.ID))
		return nil
	}

	start, end := sub.PeriodBounds()
	state := &models.BillingState{
		TenantID:             tenantID,
		StripeCustomerID:     nullString(sub.Customer),
		StripeSubscriptionID: nullString(sub.ID),
		PlanTier:             planTier,
		Status:               MapSubscriptionStatus(sub.Status),
		CurrentPeriodStart:   nullTime(start),
		CurrentPeriodEnd:     nullTime(end),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}

	if err := r.gateway.UpsertBillingState(ctx, state); err != nil {
		return fmt.Errorf("failed to upsert billing state for tenant %s: %w", tenantID, err)
	}

	r.logger.Info("Billing state upserted",
		zap.String("tenant_id", tenantID),
		zap.String("subscription_id", sub.ID),
		zap.String("status", state.Status),
		zap.String("plan_tier", planTier))

	r.publishBillingState(ctx, env, &models.BillingStateChangedEvent{
		TenantID: tenantID,
		Status:   state.Status,
		PlanTier: planTier,
	})
	return nil
}

// handleSubscriptionDeleted cancels the tenant's billing state and hides its
// locations from public listings.
func (r *Router) handleSubscriptionDeleted(ctx context.Context, env *models.Envelope, sub *models.Subscription) error {
	tenantID := strings.TrimSpace(sub.Metadata[models.MetadataTenantID])
	if tenantID == "" {
		r.skip(env, "missing_tenant", zap.String("subscription_id", sub.ID))
		return nil
	}

	status := models.BillingStatusCancelled
	update := models.BillingUpdate{
		Status:              &status,
		ClearSubscriptionID: true,
	}
	if err := r.gateway.UpdateBillingState(ctx, tenantID, update); err != nil {
		return fmt.Errorf("failed to cancel billing state for tenant %s: %w", tenantID, err)
	}

	if err := r.gateway.SetLocationsPublicFlag(ctx, tenantID, false); err != nil {
		r.bestEffort(env, "unpublish_locations", err, zap.String("tenant_id", tenantID))
	}

	r.logger.Info("Subscription cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("subscription_id", sub.ID))

	r.publishBillingState(ctx, env, &models.BillingStateChangedEvent{
		TenantID: tenantID,
		Status:   status,
	})
	return nil
}
