package service

import (
	"context"
	"time"

	"payment-reconciler/internal/models"
)

// Gateway is the only path from the reconciliation handlers to persisted state
type Gateway interface {
	UpsertBillingState(ctx context.Context, state *models.BillingState) error
	UpdateBillingState(ctx context.Context, tenantID string, update models.BillingUpdate) error
	SetLocationsPublicFlag(ctx context.Context, tenantID string, public bool) error

	UpdateBooking(ctx context.Context, bookingID string, update models.BookingUpdate) error
	GetBookingRefundState(ctx context.Context, bookingID string) (*models.RefundState, error)
	// ApplyRefund accumulates amountCents onto the booking's refund total in a
	// single atomic step and returns the resulting state, or nil when the
	// booking does not exist.
	ApplyRefund(ctx context.Context, bookingID string, amountCents int64) (*models.RefundState, error)

	UpsertLedgerEntry(ctx context.Context, paymentIntentID, transactionType string, update models.LedgerUpdate) error
	// GetLedgerEntryBookingID returns ok=false when no charge entry exists for the intent.
	GetLedgerEntryBookingID(ctx context.Context, paymentIntentID string) (bookingID string, ok bool, err error)

	UpdateLocationMerchantAccount(ctx context.Context, locationID string, account models.MerchantAccount) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ProcessorClient performs the remote reads the handlers need from the payment processor
type ProcessorClient interface {
	// GetSubscriptionTenant resolves a subscription to the tenant id stored in its metadata.
	GetSubscriptionTenant(ctx context.Context, subscriptionID string) (string, error)
	GetPaymentMethodType(ctx context.Context, paymentMethodID string) (string, error)
}

// EventPublisher emits domain events after state has been reconciled
type EventPublisher interface {
	PublishBookingPaymentUpdated(ctx context.Context, event *models.BookingPaymentUpdatedEvent) error
	PublishBillingStateChanged(ctx context.Context, event *models.BillingStateChangedEvent) error
	PublishMerchantAccountUpdated(ctx context.Context, event *models.MerchantAccountUpdatedEvent) error
}

// EventLocker guards an event id against concurrent processing
type EventLocker interface {
	AcquireEventLock(ctx context.Context, eventID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseEventLock(ctx context.Context, eventID, token string) error
}
