package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Processor event types handled by the router
const (
	EventTypeSubscriptionCreated     = "customer.subscription.created"
	EventTypeSubscriptionUpdated     = "customer.subscription.updated"
	EventTypeSubscriptionDeleted     = "customer.subscription.deleted"
	EventTypeInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventTypeInvoicePaymentFailed    = "invoice.payment_failed"
	EventTypePaymentIntentSucceeded  = "payment_intent.succeeded"
	EventTypePaymentIntentFailed     = "payment_intent.payment_failed"
	EventTypePaymentIntentCapturable = "payment_intent.amount_capturable_updated"
	EventTypeChargeSucceeded         = "charge.succeeded"
	EventTypeChargeFailed            = "charge.failed"
	EventTypeChargeRefunded          = "charge.refunded"
	EventTypeAccountUpdated          = "account.updated"
	EventTypeCheckoutCompleted       = "checkout.session.completed"
)

// Domain event types published after reconciliation
const (
	EventTypeBookingPaymentUpdated  = "BOOKING_PAYMENT_UPDATED"
	EventTypeBillingStateChanged    = "BILLING_STATE_CHANGED"
	EventTypeMerchantAccountUpdated = "MERCHANT_ACCOUNT_UPDATED"
)

// Metadata keys used to correlate processor objects with local records
const (
	MetadataTenantID   = "tenant_id"
	MetadataPlanTier   = "plan_tier"
	MetadataBookingID  = "booking_id"
	MetadataLocationID = "location_id"
)

// ErrMalformedPayload is returned when an event payload does not match the
// shape expected for its declared type.
var ErrMalformedPayload = errors.New("malformed event payload")

// Envelope is a verified processor event
type Envelope struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Created  int64           `json:"created"`
	Livemode bool            `json:"livemode"`
	Data     json.RawMessage `json:"data"`
}

// ObjectRef is a processor reference that arrives either as a bare id or as an
// expanded object.
type ObjectRef struct {
	ID   string
	Type string
	Fee  int64
}

// UnmarshalJSON accepts a string id, null, or an object carrying an id.
func (r *ObjectRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}

	var obj struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Fee  int64  `json:"fee"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID, r.Type, r.Fee = obj.ID, obj.Type, obj.Fee
	return nil
}

// MarshalJSON writes the reference as its id.
func (r ObjectRef) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// Subscription is the payload of customer.subscription.* events
type Subscription struct {
	ID                 string `json:"id"`
	Object             string `json:"object"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// PeriodBounds returns the current billing period, preferring the
// subscription-level fields and falling back to the first item.
func (s *Subscription) PeriodBounds() (start, end time.Time) {
	startUnix, endUnix := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if startUnix == 0 && endUnix == 0 && len(s.Items.Data) > 0 {
		startUnix = s.Items.Data[0].CurrentPeriodStart
		endUnix = s.Items.Data[0].CurrentPeriodEnd
	}
	if startUnix > 0 {
		start = time.Unix(startUnix, 0).UTC()
	}
	if endUnix > 0 {
		end = time.Unix(endUnix, 0).UTC()
	}
	return start, end
}

// Invoice is the payload of invoice.* events
type Invoice struct {
	ID           string    `json:"id"`
	Object       string    `json:"object"`
	Customer     string    `json:"customer"`
	Subscription ObjectRef `json:"subscription"`
	AmountPaid   int64     `json:"amount_paid"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription ObjectRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the owning subscription, if any.
func (i *Invoice) SubscriptionID() string {
	if i.Subscription.ID != "" {
		return i.Subscription.ID
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// PaymentIntent is the payload of payment_intent.* events
type PaymentIntent struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Amount             int64             `json:"amount"`
	AmountReceived     int64             `json:"amount_received"`
	AmountCapturable   int64             `json:"amount_capturable"`
	Status             string            `json:"status"`
	CaptureMethod      string            `json:"capture_method"`
	PaymentMethod      ObjectRef         `json:"payment_method"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	LatestCharge       ObjectRef         `json:"latest_charge"`
	Metadata           map[string]string `json:"metadata"`
	LastPaymentError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Payment intent capture methods and statuses
const (
	CaptureMethodManual          = "manual"
	IntentStatusRequiresCapture  = "requires_capture"
	CheckoutModeSubscription     = "subscription"
	DefaultPaymentFailureMessage = "payment failed"
)

// IsManualCapture reports whether funds are held for a separate capture step.
func (pi *PaymentIntent) IsManualCapture() bool {
	return pi.CaptureMethod == CaptureMethodManual
}

// FailureMessage returns the processor's last error message.
func (pi *PaymentIntent) FailureMessage() string {
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		return pi.LastPaymentError.Message
	}
	return DefaultPaymentFailureMessage
}

// CapturedAmount returns the amount actually received, falling back to the
// requested amount for processors that omit amount_received.
func (pi *PaymentIntent) CapturedAmount() int64 {
	if pi.AmountReceived > 0 {
		return pi.AmountReceived
	}
	return pi.Amount
}

// Charge is the payload of charge.* events
type Charge struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	PaymentIntent      ObjectRef         `json:"payment_intent"`
	Amount             int64             `json:"amount"`
	AmountCaptured     int64             `json:"amount_captured"`
	AmountRefunded     int64             `json:"amount_refunded"`
	Refunded           bool              `json:"refunded"`
	FailureCode        string            `json:"failure_code"`
	FailureMessage     string            `json:"failure_message"`
	BalanceTransaction ObjectRef         `json:"balance_transaction"`
	Metadata           map[string]string `json:"metadata"`
}

// Account is the payload of account.updated events
type Account struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	Metadata         map[string]string `json:"metadata"`
}

// CheckoutSession is the payload of checkout.session.completed events
type CheckoutSession struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      ObjectRef         `json:"subscription"`
	PaymentIntent     ObjectRef         `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// BaseEvent contains common fields for all published events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	SourceEventID string    `json:"source_event_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// BookingPaymentUpdatedEvent published when a booking's payment state changes
type BookingPaymentUpdatedEvent struct {
	BaseEvent
	BookingID         string `json:"booking_id"`
	PaymentIntentID   string `json:"payment_intent_id,omitempty"`
	Status            string `json:"status,omitempty"`
	PaymentStatus     string `json:"payment_status"`
	AmountCents       int64  `json:"amount_cents,omitempty"`
	RefundAmountCents int64  `json:"refund_amount_cents,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// BillingStateChangedEvent published when a tenant's billing status changes
type BillingStateChangedEvent struct {
	BaseEvent
	TenantID string `json:"tenant_id"`
	Status   string `json:"status"`
	PlanTier string `json:"plan_tier,omitempty"`
}

// MerchantAccountUpdatedEvent published when a location's merchant account changes
type MerchantAccountUpdatedEvent struct {
	BaseEvent
	LocationID      string `json:"location_id"`
	StripeAccountID string `json:"stripe_account_id"`
	Status          string `json:"status"`
}
