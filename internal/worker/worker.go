package worker

import (
	"context"
	"encoding/json"
	"errors"

	"payment-reconciler/internal/broker"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/service"
	"payment-reconciler/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProcessor is the reconciliation entry point shared with the webhook
type EventProcessor interface {
	Process(ctx context.Context, env *models.Envelope) (service.Outcome, error)
}

// ReplayWorker feeds operator-replayed events back through reconciliation.
// Replay messages are not signature checked; anything that can write to the
// replay topic can drive reconciliation.
type ReplayWorker struct {
	consumer  *broker.Consumer
	processor EventProcessor
	logger    *zap.Logger
}

// NewReplayWorker creates a new replay worker
func NewReplayWorker(consumer *broker.Consumer, processor EventProcessor) *ReplayWorker {
	return &ReplayWorker{
		consumer:  consumer,
		processor: processor,
		logger:    util.Named("replay-worker"),
	}
}

// Start starts the worker
func (w *ReplayWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting replay worker...")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *ReplayWorker) Stop() error {
	w.logger.Info("Stopping replay worker...")
	return w.consumer.Close()
}

// handleMessage returns an error only for failures worth retrying. A message
// that can never be processed is logged and dropped.
func (w *ReplayWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var env models.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		w.logger.Error("Dropping undecodable replay message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	outcome, err := w.processor.Process(ctx, &env)
	if errors.Is(err, models.ErrMalformedPayload) {
		w.logger.Error("Dropping malformed replay event",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Info("Replayed event",
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type),
		zap.String("outcome", string(outcome)))
	return nil
}
