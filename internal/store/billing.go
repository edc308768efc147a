package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-reconciler/internal/models"
)

// UpsertBillingState creates or replaces the subscription fields of a tenant's
// billing state. last_payment_at is owned by invoice events and kept as is.
func (s *Store) UpsertBillingState(ctx context.Context, state *models.BillingState) error {
	query := `
		INSERT INTO billing_states (
			tenant_id, stripe_customer_id, stripe_subscription_id, plan_tier, status,
			current_period_start, current_period_end, cancel_at_period_end)
		VALUES (
			:tenant_id, :stripe_customer_id, :stripe_subscription_id, :plan_tier, :status,
			:current_period_start, :current_period_end, :cancel_at_period_end)
		ON CONFLICT (tenant_id) DO UPDATE SET
			stripe_customer_id     = COALESCE(EXCLUDED.stripe_customer_id, billing_states.stripe_customer_id),
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan_tier              = EXCLUDED.plan_tier,
			status                 = EXCLUDED.status,
			current_period_start   = EXCLUDED.current_period_start,
			current_period_end     = EXCLUDED.current_period_end,
			cancel_at_period_end   = EXCLUDED.cancel_at_period_end,
			updated_at             = NOW()`

	if _, err := s.db.NamedExecContext(ctx, query, state); err != nil {
		return fmt.Errorf("failed to upsert billing state: %w", err)
	}
	return nil
}

// UpdateBillingState applies a partial update. A missing tenant is not an error.
func (s *Store) UpdateBillingState(ctx context.Context, tenantID string, update models.BillingUpdate) error {
	var b updateBuilder
	if update.Status != nil {
		b.set("status", *update.Status)
	}
	if update.PlanTier != nil {
		b.set("plan_tier", *update.PlanTier)
	}
	if update.LastPaymentAt != nil {
		b.set("last_payment_at", *update.LastPaymentAt)
	}
	if update.ClearSubscriptionID {
		b.setExpr("stripe_subscription_id = NULL")
	}
	if b.empty() {
		return nil
	}

	query, args := b.build("billing_states", "tenant_id", tenantID)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update billing state: %w", err)
	}
	return nil
}

// GetBillingState retrieves a tenant's billing state
func (s *Store) GetBillingState(ctx context.Context, tenantID string) (*models.BillingState, error) {
	var state models.BillingState
	err := s.db.GetContext(ctx, &state, "SELECT * FROM billing_states WHERE tenant_id = $1", tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
