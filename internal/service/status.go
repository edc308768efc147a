package service

import (
	"strings"

	"payment-reconciler/internal/models"
)

var subscriptionStatuses = map[string]string{
	"active":   models.BillingStatusActive,
	"trialing": models.BillingStatusTrialing,
	"past_due": models.BillingStatusPastDue,
	"canceled": models.BillingStatusCancelled,
	"unpaid":   models.BillingStatusUnpaid,
}

// MapSubscriptionStatus converts a processor subscription status into a
// billing status. Unrecognized values map to INACTIVE.
func MapSubscriptionStatus(status string) string {
	if mapped, ok := subscriptionStatuses[status]; ok {
		return mapped
	}
	return models.BillingStatusInactive
}

// DeriveMerchantStatus computes the tri-state merchant account status:
// ENABLED needs both capabilities, RESTRICTED means onboarding was submitted
// without both, anything else is PENDING.
func DeriveMerchantStatus(chargesEnabled, payoutsEnabled, detailsSubmitted bool) string {
	switch {
	case chargesEnabled && payoutsEnabled:
		return models.MerchantStatusEnabled
	case detailsSubmitted:
		return models.MerchantStatusRestricted
	default:
		return models.MerchantStatusPending
	}
}

// NormalizePaymentMethodType upper-cases a processor payment method type,
// defaulting to CARD when unknown.
func NormalizePaymentMethodType(pmType string) string {
	pmType = strings.TrimSpace(pmType)
	if pmType == "" {
		return models.PaymentMethodCard
	}
	return strings.ToUpper(pmType)
}
