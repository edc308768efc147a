package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-reconciler/internal/models"
	"payment-reconciler/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrEventInFlight is returned when another delivery of the same event is
// currently being processed.
var ErrEventInFlight = errors.New("event is already being processed")

// Outcome describes how an accepted event was handled
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconciler guards the router with event-level deduplication
type Reconciler struct {
	gateway Gateway
	router  *Router
	locker  EventLocker
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewReconciler creates a reconciler. locker may be nil, in which case only
// the processed-event ledger is consulted.
func NewReconciler(gateway Gateway, router *Router, locker EventLocker, lockTTL time.Duration) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		router:  router,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  util.GetLogger(),
	}
}

// Process handles one verified event at most once. Handler errors leave the
// event unmarked so a redelivery retries it.
func (rc *Reconciler) Process(ctx context.Context, env *models.Envelope) (outcome Outcome, err error) {
	if env == nil || env.ID == "" || env.Type == "" {
		return "", fmt.Errorf("%w: envelope without id or type", models.ErrMalformedPayload)
	}

	ctx, span := util.StartSpan(ctx, "Reconciler.Process",
		attribute.String("event.id", env.ID),
		attribute.String("event.type", env.Type))
	defer func() { util.EndSpan(span, err) }()

	if !rc.router.Handles(env.Type) {
		return OutcomeIgnored, rc.router.Route(ctx, env)
	}

	if rc.locker != nil {
		token, acquired, lockErr := rc.locker.AcquireEventLock(ctx, env.ID, rc.lockTTL)
		switch {
		case lockErr != nil:
			rc.logger.Warn("Event lock unavailable, relying on processed-event ledger",
				zap.String("event_id", env.ID),
				zap.Error(lockErr))
		case !acquired:
			return "", ErrEventInFlight
		default:
			defer rc.release(context.WithoutCancel(ctx), env.ID, token)
		}
	}

	processed, err := rc.gateway.IsEventProcessed(ctx, env.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		util.DuplicateEventsTotal.Inc()
		rc.logger.Info("Event already processed",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type))
		return OutcomeDuplicate, nil
	}

	if err = rc.router.Route(ctx, env); err != nil {
		return "", err
	}

	if markErr := rc.gateway.MarkEventProcessed(ctx, env.ID, env.Type); markErr != nil {
		rc.logger.Error("Failed to mark event processed",
			zap.String("event_id", env.ID),
			zap.Error(markErr))
	}

	return OutcomeProcessed, nil
}

func (rc *Reconciler) release(ctx context.Context, eventID, token string) {
	if err := rc.locker.ReleaseEventLock(ctx, eventID, token); err != nil {
		rc.logger.Warn("Failed to release event lock",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}
