package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payment-reconciler/config"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/util"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

const (
	opGetSubscription  = "get_subscription"
	opGetPaymentMethod = "get_payment_method"
)

// TenantCache memoizes subscription to tenant resolution
type TenantCache interface {
	GetSubscriptionTenant(ctx context.Context, subscriptionID string) (tenantID string, ok bool, err error)
	SetSubscriptionTenant(ctx context.Context, subscriptionID, tenantID string, ttl time.Duration) error
}

// Client performs the read-only processor API calls needed during
// reconciliation. Calls share one circuit breaker so a processor outage fails
// fast instead of holding webhook deliveries open.
type Client struct {
	getSubscription  func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	getPaymentMethod func(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)

	breaker  *gobreaker.CircuitBreaker[any]
	cache    TenantCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClient creates a processor client authenticated with secretKey. cache
// may be nil.
func NewClient(secretKey string, breaker config.BreakerConfig, cache TenantCache, cacheTTL time.Duration) *Client {
	api := stripeclient.New(secretKey, nil)
	return newClient(api.Subscriptions.Get, api.PaymentMethods.Get, breaker, cache, cacheTTL)
}

func newClient(
	getSubscription func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error),
	getPaymentMethod func(string, *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error),
	breaker config.BreakerConfig,
	cache TenantCache,
	cacheTTL time.Duration,
) *Client {
	logger := util.Named("processor")
	threshold := breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isAvailabilitySuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		getSubscription:  getSubscription,
		getPaymentMethod: getPaymentMethod,
		breaker:          gobreaker.NewCircuitBreaker[any](settings),
		cache:            cache,
		cacheTTL:         cacheTTL,
		logger:           logger,
	}
}

// isAvailabilitySuccess treats 4xx answers other than throttling as a
// healthy processor. A missing object must not trip the breaker.
func isAvailabilitySuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 &&
			stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

// GetSubscriptionTenant resolves a subscription to the tenant recorded in its
// metadata. An empty tenant with a nil error means the subscription carries no
// tenant.
func (c *Client) GetSubscriptionTenant(ctx context.Context, subscriptionID string) (string, error) {
	if c.cache != nil {
		tenantID, ok, err := c.cache.GetSubscriptionTenant(ctx, subscriptionID)
		if err != nil {
			c.logger.Warn("Tenant cache read failed",
				zap.String("subscription_id", subscriptionID),
				zap.Error(err))
		} else if ok {
			return tenantID, nil
		}
	}

	sub, err := call(ctx, c, opGetSubscription, func() (*stripe.Subscription, error) {
		return c.getSubscription(subscriptionID, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}

	tenantID := strings.TrimSpace(sub.Metadata[models.MetadataTenantID])
	if tenantID != "" && c.cache != nil {
		if err := c.cache.SetSubscriptionTenant(ctx, subscriptionID, tenantID, c.cacheTTL); err != nil {
			c.logger.Warn("Tenant cache write failed",
				zap.String("subscription_id", subscriptionID),
				zap.Error(err))
		}
	}
	return tenantID, nil
}

// GetPaymentMethodType returns the processor's type for a payment method, for
// example "card" or "us_bank_account".
func (c *Client) GetPaymentMethodType(ctx context.Context, paymentMethodID string) (string, error) {
	pm, err := call(ctx, c, opGetPaymentMethod, func() (*stripe.PaymentMethod, error) {
		return c.getPaymentMethod(paymentMethodID, &stripe.PaymentMethodParams{Params: stripe.Params{Context: ctx}})
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve payment method %s: %w", paymentMethodID, err)
	}
	return string(pm.Type), nil
}

// call runs fn through the breaker while recording latency and failures
func call[T any](ctx context.Context, c *Client, operation string, fn func() (*T, error)) (*T, error) {
	_, span := util.StartSpan(ctx, "processor."+operation)
	start := time.Now()

	result, err := c.breaker.Execute(func() (any, error) {
		return fn()
	})
	util.ProcessorLookupLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	util.EndSpan(span, err)

	if err != nil {
		util.ProcessorLookupFailures.WithLabelValues(operation).Inc()
		return nil, err
	}

	obj, ok := result.(*T)
	if !ok || obj == nil {
		util.ProcessorLookupFailures.WithLabelValues(operation).Inc()
		return nil, fmt.Errorf("%s returned no object", operation)
	}
	return obj, nil
}
