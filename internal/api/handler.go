package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"payment-reconciler/internal/models"
	"payment-reconciler/internal/processor"
	"payment-reconciler/internal/service"
	"payment-reconciler/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxWebhookBodyBytes = 1 << 20
	signatureHeader     = "Stripe-Signature"
	unknownEventType    = "unknown"
)

// EventVerifier authenticates a raw webhook delivery
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*models.Envelope, error)
}

// EventProcessor reconciles a verified event
type EventProcessor interface {
	Process(ctx context.Context, env *models.Envelope) (service.Outcome, error)
}

// StateReader serves the read-only reconciliation endpoints. Lookups return
// nil when the record does not exist.
type StateReader interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	GetBookingRefundState(ctx context.Context, bookingID string) (*models.RefundState, error)
	GetBillingState(ctx context.Context, tenantID string) (*models.BillingState, error)
	GetLedgerEntry(ctx context.Context, paymentIntentID, transactionType string) (*models.PaymentTransaction, error)
	GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	verifier  EventVerifier
	processor EventProcessor
	reader    StateReader
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are the named dependencies
// that must answer before the service reports ready.
func NewHandler(verifier EventVerifier, processor EventProcessor, reader StateReader, checks map[string]Pinger) *Handler {
	return &Handler{
		verifier:  verifier,
		processor: processor,
		reader:    reader,
		checks:    checks,
		logger:    util.Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/stripe", h.stripeWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/bookings/:id", h.getBooking)
		v1.GET("/bookings/:id/payment", h.getBookingPayment)
		v1.GET("/tenants/:id/billing", h.getTenantBilling)
		v1.GET("/payment-intents/:id/transactions", h.getPaymentTransactions)
		v1.GET("/events/:id", h.getProcessedEvent)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// stripeWebhook verifies and reconciles one processor event. The processor
// retries any non-2xx response, so only failures a retry could fix are 5xx.
func (h *Handler) stripeWebhook(c *gin.Context) {
	start := time.Now()
	eventType := unknownEventType
	defer func() {
		util.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(c.Writer.Status())).Inc()
		util.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	env, err := h.verifier.Verify(payload, c.GetHeader(signatureHeader))
	if err != nil {
		h.logger.Warn("Rejected webhook delivery", zap.Error(err))
		if errors.Is(err, processor.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	eventType = env.Type

	outcome, err := h.processor.Process(c.Request.Context(), env)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"status":   outcome,
		})
	case errors.Is(err, models.ErrMalformedPayload):
		h.logger.Warn("Malformed event payload",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid payload",
			"details": err.Error(),
		})
	case errors.Is(err, service.ErrEventInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "Event is already being processed"})
	default:
		h.logger.Error("Failed to process event",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
	}
}

// getBooking returns the payment summary of a booking
func (h *Handler) getBooking(c *gin.Context) {
	bookingID := c.Param("id")

	booking, err := h.reader.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		h.logger.Error("Failed to load booking", zap.String("booking_id", bookingID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load booking"})
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}

	c.JSON(http.StatusOK, newBookingView(booking))
}

// getBookingPayment returns the refund accounting of a booking
func (h *Handler) getBookingPayment(c *gin.Context) {
	bookingID := c.Param("id")

	state, err := h.reader.GetBookingRefundState(c.Request.Context(), bookingID)
	if err != nil {
		h.logger.Error("Failed to load booking payment", zap.String("booking_id", bookingID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load booking payment"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// getTenantBilling returns a tenant's billing state
func (h *Handler) getTenantBilling(c *gin.Context) {
	tenantID := c.Param("id")

	state, err := h.reader.GetBillingState(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to load billing state", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load billing state"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Billing state not found"})
		return
	}

	c.JSON(http.StatusOK, newBillingView(state))
}

// getPaymentTransactions returns the charge and refund ledger entries of a
// payment intent
func (h *Handler) getPaymentTransactions(c *gin.Context) {
	intentID := c.Param("id")

	transactions := make([]transactionView, 0, 2)
	for _, txType := range []string{models.TransactionTypeCharge, models.TransactionTypeRefund} {
		entry, err := h.reader.GetLedgerEntry(c.Request.Context(), intentID, txType)
		if err != nil {
			h.logger.Error("Failed to load ledger entry",
				zap.String("payment_intent_id", intentID),
				zap.String("transaction_type", txType),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
			return
		}
		if entry != nil {
			transactions = append(transactions, newTransactionView(entry))
		}
	}

	if len(transactions) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No transactions for payment intent"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_intent_id": intentID,
		"transactions":      transactions,
	})
}

// getProcessedEvent reports whether an event has been reconciled
func (h *Handler) getProcessedEvent(c *gin.Context) {
	eventID := c.Param("id")

	event, err := h.reader.GetProcessedEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("Failed to load processed event", zap.String("event_id", eventID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not processed"})
		return
	}

	c.JSON(http.StatusOK, event)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
