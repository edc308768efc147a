package models

import (
	"database/sql"
	"time"
)

// BillingState is the per-tenant subscription record
type BillingState struct {
	ID                   int64          `db:"id" json:"id"`
	TenantID             string         `db:"tenant_id" json:"tenant_id"`
	StripeCustomerID     sql.NullString `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID sql.NullString `db:"stripe_subscription_id" json:"-"`
	PlanTier             string         `db:"plan_tier" json:"plan_tier"`
	Status               string         `db:"status" json:"status"`
	CurrentPeriodStart   sql.NullTime   `db:"current_period_start" json:"-"`
	CurrentPeriodEnd     sql.NullTime   `db:"current_period_end" json:"-"`
	CancelAtPeriodEnd    bool           `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	LastPaymentAt        sql.NullTime   `db:"last_payment_at" json:"-"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// BillingUpdate is a partial update of a billing state; nil fields are left untouched
type BillingUpdate struct {
	Status              *string
	PlanTier            *string
	LastPaymentAt       *time.Time
	ClearSubscriptionID bool
}

// Booking holds the payment summary fields of a reservation
type Booking struct {
	ID                    string         `db:"id" json:"id"`
	Status                string         `db:"status" json:"status"`
	PaymentStatus         string         `db:"payment_status" json:"payment_status"`
	PaymentIntentID       sql.NullString `db:"payment_intent_id" json:"-"`
	PaymentMethodID       sql.NullString `db:"payment_method_id" json:"-"`
	PaymentMethodType     sql.NullString `db:"payment_method_type" json:"-"`
	CapturedAmountCents   int64          `db:"captured_amount_cents" json:"captured_amount_cents"`
	AuthorizedAmountCents int64          `db:"authorized_amount_cents" json:"authorized_amount_cents"`
	RefundAmountCents     int64          `db:"refund_amount_cents" json:"refund_amount_cents"`
	PaymentFailureReason  sql.NullString `db:"payment_failure_reason" json:"-"`
	PaidAt                sql.NullTime   `db:"paid_at" json:"-"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// BookingUpdate is a partial update of a booking; nil fields are left untouched
type BookingUpdate struct {
	Status                *string
	PaymentStatus         *string
	PaymentIntentID       *string
	PaymentMethodID       *string
	PaymentMethodType     *string
	CapturedAmountCents   *int64
	AuthorizedAmountCents *int64
	FailureReason         *string
	PaidAt                *time.Time
}

// PaymentTransaction is one ledger entry keyed by (payment intent, transaction type)
type PaymentTransaction struct {
	ID                int64          `db:"id" json:"id"`
	BookingID         sql.NullString `db:"booking_id" json:"-"`
	PaymentIntentID   string         `db:"payment_intent_id" json:"payment_intent_id"`
	TransactionType   string         `db:"transaction_type" json:"transaction_type"`
	Status            string         `db:"status" json:"status"`
	StripeChargeID    sql.NullString `db:"stripe_charge_id" json:"-"`
	ProcessorFeeCents sql.NullInt64  `db:"processor_fee_cents" json:"-"`
	FailureReason     sql.NullString `db:"failure_reason" json:"-"`
	CompletedAt       sql.NullTime   `db:"completed_at" json:"-"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// LedgerUpdate is the set of ledger fields written by an event; nil fields are left untouched
type LedgerUpdate struct {
	Status            string
	BookingID         *string
	StripeChargeID    *string
	ProcessorFeeCents *int64
	FailureReason     *string
	CompletedAt       *time.Time
}

// MerchantAccount is the connected-account state stored on a location
type MerchantAccount struct {
	StripeAccountID  string `db:"stripe_account_id" json:"stripe_account_id"`
	ChargesEnabled   bool   `db:"charges_enabled" json:"charges_enabled"`
	PayoutsEnabled   bool   `db:"payouts_enabled" json:"payouts_enabled"`
	DetailsSubmitted bool   `db:"details_submitted" json:"details_submitted"`
	Status           string `db:"merchant_status" json:"merchant_status"`
}

// Billing statuses
const (
	BillingStatusActive    = "ACTIVE"
	BillingStatusTrialing  = "TRIALING"
	BillingStatusPastDue   = "PAST_DUE"
	BillingStatusCancelled = "CANCELLED"
	BillingStatusUnpaid    = "UNPAID"
	BillingStatusInactive  = "INACTIVE"
)

// Booking statuses
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
)

// Booking payment statuses
const (
	PaymentStatusNone              = "NONE"
	PaymentStatusAuthorized        = "AUTHORIZED"
	PaymentStatusPaid              = "PAID"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Ledger transaction types and statuses
const (
	TransactionTypeCharge = "CHARGE"
	TransactionTypeRefund = "REFUND"

	TransactionStatusPending   = "PENDING"
	TransactionStatusSucceeded = "SUCCEEDED"
	TransactionStatusFailed    = "FAILED"
)

// Merchant account statuses
const (
	MerchantStatusEnabled    = "ENABLED"
	MerchantStatusRestricted = "RESTRICTED"
	MerchantStatusPending    = "PENDING"
)

// Payment method types recorded on bookings
const (
	PaymentMethodCard = "CARD"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id" json:"event_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
