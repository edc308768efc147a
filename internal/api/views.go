package api

import (
	"database/sql"
	"time"

	"payment-reconciler/internal/models"
)

type bookingView struct {
	ID                    string     `json:"id"`
	Status                string     `json:"status"`
	PaymentStatus         string     `json:"payment_status"`
	PaymentIntentID       *string    `json:"payment_intent_id"`
	PaymentMethodID       *string    `json:"payment_method_id"`
	PaymentMethodType     *string    `json:"payment_method_type"`
	CapturedAmountCents   int64      `json:"captured_amount_cents"`
	AuthorizedAmountCents int64      `json:"authorized_amount_cents"`
	RefundAmountCents     int64      `json:"refund_amount_cents"`
	PaymentFailureReason  *string    `json:"payment_failure_reason"`
	PaidAt                *time.Time `json:"paid_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func newBookingView(b *models.Booking) bookingView {
	return bookingView{
		ID:                    b.ID,
		Status:                b.Status,
		PaymentStatus:         b.PaymentStatus,
		PaymentIntentID:       stringOrNil(b.PaymentIntentID),
		PaymentMethodID:       stringOrNil(b.PaymentMethodID),
		PaymentMethodType:     stringOrNil(b.PaymentMethodType),
		CapturedAmountCents:   b.CapturedAmountCents,
		AuthorizedAmountCents: b.AuthorizedAmountCents,
		RefundAmountCents:     b.RefundAmountCents,
		PaymentFailureReason:  stringOrNil(b.PaymentFailureReason),
		PaidAt:                timeOrNil(b.PaidAt),
		UpdatedAt:             b.UpdatedAt,
	}
}

type billingView struct {
	TenantID             string     `json:"tenant_id"`
	Status               string     `json:"status"`
	PlanTier             string     `json:"plan_tier"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	LastPaymentAt        *time.Time `json:"last_payment_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func newBillingView(s *models.BillingState) billingView {
	return billingView{
		TenantID:             s.TenantID,
		Status:               s.Status,
		PlanTier:             s.PlanTier,
		StripeCustomerID:     stringOrNil(s.StripeCustomerID),
		StripeSubscriptionID: stringOrNil(s.StripeSubscriptionID),
		CurrentPeriodStart:   timeOrNil(s.CurrentPeriodStart),
		CurrentPeriodEnd:     timeOrNil(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		LastPaymentAt:        timeOrNil(s.LastPaymentAt),
		UpdatedAt:            s.UpdatedAt,
	}
}

type transactionView struct {
	TransactionType   string     `json:"transaction_type"`
	Status            string     `json:"status"`
	BookingID         *string    `json:"booking_id"`
	StripeChargeID    *string    `json:"stripe_charge_id"`
	ProcessorFeeCents *int64     `json:"processor_fee_cents"`
	FailureReason     *string    `json:"failure_reason"`
	CompletedAt       *time.Time `json:"completed_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newTransactionView(tx *models.PaymentTransaction) transactionView {
	view := transactionView{
		TransactionType: tx.TransactionType,
		Status:          tx.Status,
		BookingID:       stringOrNil(tx.BookingID),
		StripeChargeID:  stringOrNil(tx.StripeChargeID),
		FailureReason:   stringOrNil(tx.FailureReason),
		CompletedAt:     timeOrNil(tx.CompletedAt),
		UpdatedAt:       tx.UpdatedAt,
	}
	if tx.ProcessorFeeCents.Valid {
		fee := tx.ProcessorFeeCents.Int64
		view.ProcessorFeeCents = &fee
	}
	return view
}

func stringOrNil(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func timeOrNil(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}
