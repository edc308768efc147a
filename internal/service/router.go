package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"payment-reconciler/internal/models"
	"payment-reconciler/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type handlerFunc func(ctx context.Context, env *models.Envelope) error

// payload is implemented by the typed processor objects in models
type payload[T any] interface {
	*T
	Validate() error
}

// typed decodes and validates the envelope payload before invoking fn, so
// handlers only ever see a well-formed object of the expected type.
func typed[T any, P payload[T]](fn func(context.Context, *models.Envelope, P) error) handlerFunc {
	return func(ctx context.Context, env *models.Envelope) error {
		obj := P(new(T))
		if err := json.Unmarshal(env.Data, obj); err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrMalformedPayload, env.Type, err)
		}
		if err := obj.Validate(); err != nil {
			return err
		}
		return fn(ctx, env, obj)
	}
}

// Router dispatches verified events to exactly one reconciliation handler
type Router struct {
	gateway   Gateway
	processor ProcessorClient
	publisher EventPublisher
	handlers  map[string]handlerFunc
	logger    *zap.Logger
	now       func() time.Time
}

// NewRouter creates a router over the closed set of handled event types.
// publisher may be nil.
func NewRouter(gateway Gateway, processor ProcessorClient, publisher EventPublisher) *Router {
	r := &Router{
		gateway:   gateway,
		processor: processor,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}

	r.handlers = map[string]handlerFunc{
		models.EventTypeSubscriptionCreated:     typed(r.handleSubscriptionUpserted),
		models.EventTypeSubscriptionUpdated:     typed(r.handleSubscriptionUpserted),
		models.EventTypeSubscriptionDeleted:     typed(r.handleSubscriptionDeleted),
		models.EventTypeInvoicePaymentSucceeded: typed(r.handleInvoicePaymentSucceeded),
		models.EventTypeInvoicePaymentFailed:    typed(r.handleInvoicePaymentFailed),
		models.EventTypePaymentIntentSucceeded:  typed(r.handlePaymentIntentSucceeded),
		models.EventTypePaymentIntentFailed:     typed(r.handlePaymentIntentFailed),
		models.EventTypePaymentIntentCapturable: typed(r.handlePaymentIntentCapturable),
		models.EventTypeChargeSucceeded:         typed(r.handleChargeSucceeded),
		models.EventTypeChargeFailed:            typed(r.handleChargeFailed),
		models.EventTypeChargeRefunded:          typed(r.handleChargeRefunded),
		models.EventTypeAccountUpdated:          typed(r.handleAccountUpdated),
		models.EventTypeCheckoutCompleted:       typed(r.handleCheckoutCompleted),
	}

	return r
}

// Handles reports whether eventType has a registered handler
func (r *Router) Handles(eventType string) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Route invokes the handler registered for the envelope's type. Unknown types
// are acknowledged without side effects.
func (r *Router) Route(ctx context.Context, env *models.Envelope) error {
	handler, ok := r.handlers[env.Type]
	if !ok {
		util.EventsIgnoredTotal.WithLabelValues(env.Type).Inc()
		r.logger.Info("Unhandled event type",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type))
		return nil
	}

	ctx, span := util.StartSpan(ctx, "Router.Route",
		attribute.String("event.id", env.ID),
		attribute.String("event.type", env.Type))

	err := handler(ctx, env)
	util.EndSpan(span, err)

	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsHandledTotal.WithLabelValues(env.Type, result).Inc()
	return err
}

// skip records an event acknowledged without writes
func (r *Router) skip(env *models.Envelope, reason string, fields ...zap.Field) {
	util.SilentSkipsTotal.WithLabelValues(env.Type, reason).Inc()
	r.logger.Warn("Event skipped without changes",
		append([]zap.Field{
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.String("reason", reason),
		}, fields...)...)
}

// bestEffort logs a failed secondary write that must not fail the event
func (r *Router) bestEffort(env *models.Envelope, operation string, err error, fields ...zap.Field) {
	util.BestEffortFailuresTotal.WithLabelValues(operation).Inc()
	r.logger.Error("Secondary write failed",
		append([]zap.Field{
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.String("operation", operation),
			zap.Error(err),
		}, fields...)...)
}

// eventTime is the processor's creation time of the event. Using it instead of
// the wall clock keeps redelivered events writing identical timestamps.
func (r *Router) eventTime(env *models.Envelope) time.Time {
	if env.Created > 0 {
		return time.Unix(env.Created, 0).UTC()
	}
	return r.now().UTC()
}

func (r *Router) baseEvent(env *models.Envelope, eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SourceEventID: env.ID,
		Timestamp:     r.now().UTC(),
	}
}

func (r *Router) publishBookingPayment(ctx context.Context, env *models.Envelope, event *models.BookingPaymentUpdatedEvent) {
	if r.publisher == nil {
		return
	}
	event.BaseEvent = r.baseEvent(env, models.EventTypeBookingPaymentUpdated)
	if err := r.publisher.PublishBookingPaymentUpdated(ctx, event); err != nil {
		r.bestEffort(env, "publish_booking_payment", err, zap.String("booking_id", event.BookingID))
	}
}

func (r *Router) publishBillingState(ctx context.Context, env *models.Envelope, event *models.BillingStateChangedEvent) {
	if r.publisher == nil {
		return
	}
	event.BaseEvent = r.baseEvent(env, models.EventTypeBillingStateChanged)
	if err := r.publisher.PublishBillingStateChanged(ctx, event); err != nil {
		r.bestEffort(env, "publish_billing_state", err, zap.String("tenant_id", event.TenantID))
	}
}

func (r *Router) publishMerchantAccount(ctx context.Context, env *models.Envelope, event *models.MerchantAccountUpdatedEvent) {
	if r.publisher == nil {
		return
	}
	event.BaseEvent = r.baseEvent(env, models.EventTypeMerchantAccountUpdated)
	if err := r.publisher.PublishMerchantAccountUpdated(ctx, event); err != nil {
		r.bestEffort(env, "publish_merchant_account", err, zap.String("location_id", event.LocationID))
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
