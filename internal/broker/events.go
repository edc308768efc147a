package broker

import (
	"context"
	"fmt"

	"payment-reconciler/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBookingPaymentUpdated publishes BookingPaymentUpdated event
func (ep *EventPublisher) PublishBookingPaymentUpdated(ctx context.Context, event *models.BookingPaymentUpdatedEvent) error {
	key := fmt.Sprintf("booking-%s", event.BookingID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishBillingStateChanged publishes BillingStateChanged event
func (ep *EventPublisher) PublishBillingStateChanged(ctx context.Context, event *models.BillingStateChangedEvent) error {
	key := fmt.Sprintf("tenant-%s", event.TenantID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishMerchantAccountUpdated publishes MerchantAccountUpdated event
func (ep *EventPublisher) PublishMerchantAccountUpdated(ctx context.Context, event *models.MerchantAccountUpdatedEvent) error {
	key := fmt.Sprintf("location-%s", event.LocationID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}
