package service

import (
	"context"
	"fmt"
	"strings"

	"payment-reconciler/internal/models"

	"go.uber.org/zap"
)

func (r *Router) handleInvoicePaymentSucceeded(ctx context.Context, env *models.Envelope, inv *models.Invoice) error {
	tenantID, ok, err := r.resolveInvoiceTenant(ctx, env, inv)
	if err != nil || !ok {
		return err
	}

	status := models.BillingStatusActive
	paidAt := r.eventTime(env)
	update := models.BillingUpdate{
		Status:        &status,
		LastPaymentAt: &paidAt,
	}
	if err := r.gateway.UpdateBillingState(ctx, tenantID, update); err != nil {
		return fmt.Errorf("failed to activate billing state for tenant %s: %w", tenantID, err)
	}

	r.logger.Info("Invoice paid",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", inv.ID),
		zap.Int64("amount_paid", inv.AmountPaid))

	r.publishBillingState(ctx, env, &models.BillingStateChangedEvent{TenantID: tenantID, Status: status})
	return nil
}

func (r *Router) handleInvoicePaymentFailed(ctx context.Context, env *models.Envelope, inv *models.Invoice) error {
	tenantID, ok, err := r.resolveInvoiceTenant(ctx, env, inv)
	if err != nil || !ok {
		return err
	}

	status := models.BillingStatusPastDue
	if err := r.gateway.UpdateBillingState(ctx, tenantID, models.BillingUpdate{Status: &status}); err != nil {
		return fmt.Errorf("failed to mark billing state past due for tenant %s: %w", tenantID, err)
	}

	r.logger.Warn("Invoice payment failed",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", inv.ID))

	r.publishBillingState(ctx, env, &models.BillingStateChangedEvent{TenantID: tenantID, Status: status})
	return nil
}

// resolveInvoiceTenant recovers the tenant through the invoice's subscription.
// The invoice payload does not carry the tenant, so this is a remote read. A
// failed read is returned so the delivery is retried; a subscription without a
// tenant is skipped.
func (r *Router) resolveInvoiceTenant(ctx context.Context, env *models.Envelope, inv *models.Invoice) (string, bool, error) {
	subscriptionID := inv.SubscriptionID()
	if subscriptionID == "" {
		r.logger.Debug("Invoice not tied to a subscription",
			zap.String("event_id", env.ID),
			zap.String("invoice_id", inv.ID))
		return "", false, nil
	}

	tenantID, err := r.processor.GetSubscriptionTenant(ctx, subscriptionID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve tenant for subscription %s: %w", subscriptionID, err)
	}

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		r.skip(env, "missing_tenant", zap.String("subscription_id", subscriptionID))
		return "", false, nil
	}
	return tenantID, true, nil
}
