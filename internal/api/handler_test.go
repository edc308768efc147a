package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"payment-reconciler/internal/models"
	"payment-reconciler/internal/processor"
	"payment-reconciler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

const refundEvent = `{"id":"evt_1","object":"event","type":"charge.refunded","created":1717000000,` +
	`"data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount_refunded":4000}}}`

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, env *models.Envelope) (service.Outcome, error) {
	args := m.Called(ctx, env)
	return args.Get(0).(service.Outcome), args.Error(1)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	booking, _ := args.Get(0).(*models.Booking)
	return booking, args.Error(1)
}

func (m *mockReader) GetBookingRefundState(ctx context.Context, bookingID string) (*models.RefundState, error) {
	args := m.Called(ctx, bookingID)
	state, _ := args.Get(0).(*models.RefundState)
	return state, args.Error(1)
}

func (m *mockReader) GetBillingState(ctx context.Context, tenantID string) (*models.BillingState, error) {
	args := m.Called(ctx, tenantID)
	state, _ := args.Get(0).(*models.BillingState)
	return state, args.Error(1)
}

func (m *mockReader) GetLedgerEntry(ctx context.Context, paymentIntentID, transactionType string) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, paymentIntentID, transactionType)
	entry, _ := args.Get(0).(*models.PaymentTransaction)
	return entry, args.Error(1)
}

func (m *mockReader) GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	args := m.Called(ctx, eventID)
	event, _ := args.Get(0).(*models.ProcessedEvent)
	return event, args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(proc EventProcessor, reader StateReader, checks map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(processor.NewVerifier(testSecret), proc, reader, checks).SetupRoutes(router)
	return router
}

func postSigned(router http.Handler, payload string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return post(router, signed.Payload, signed.Header)
}

func post(router http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhookAcknowledgesOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome service.Outcome
	}{
		{"processed", service.OutcomeProcessed},
		{"duplicate", service.OutcomeDuplicate},
		{"ignored", service.OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{}
			proc.On("Process", mock.Anything, mock.MatchedBy(func(env *models.Envelope) bool {
				return env.ID == "evt_1" && env.Type == models.EventTypeChargeRefunded
			})).Return(tt.outcome, nil)

			w := postSigned(newTestRouter(proc, &mockReader{}, nil), refundEvent)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"received":true,"status":%q}`, tt.outcome), w.Body.String())
			proc.AssertExpectations(t)
		})
	}
}

func TestStripeWebhookRejectsBadSignatureWithoutProcessing(t *testing.T) {
	proc := &mockProcessor{}
	router := newTestRouter(proc, &mockReader{}, nil)

	w := post(router, []byte(refundEvent), "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(router, []byte(refundEvent), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestStripeWebhookErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"malformed payload", fmt.Errorf("%w: expected charge, got refund", models.ErrMalformedPayload), http.StatusBadRequest},
		{"in flight", service.ErrEventInFlight, http.StatusConflict},
		{"store failure", errors.New("failed to apply refund to booking b1: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{}
			proc.On("Process", mock.Anything, mock.Anything).Return(service.Outcome(""), tt.err)

			w := postSigned(newTestRouter(proc, &mockReader{}, nil), refundEvent)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestStripeWebhookRejectsUnparseableEvent(t *testing.T) {
	proc := &mockProcessor{}

	w := postSigned(newTestRouter(proc, &mockReader{}, nil), `{"id":"evt_2","object":"event","type":"charge.refunded"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	proc := &mockProcessor{}
	body := `{"pad":"` + strings.Repeat("x", maxWebhookBodyBytes) + `"}`

	w := post(newTestRouter(proc, &mockReader{}, nil), []byte(body), "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestGetBookingPayment(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetBookingRefundState", mock.Anything, "b1").Return(&models.RefundState{
		BookingID:           "b1",
		PaymentStatus:       models.PaymentStatusPartiallyRefunded,
		CapturedAmountCents: 10000,
		RefundAmountCents:   4000,
	}, nil)
	reader.On("GetBookingRefundState", mock.Anything, "missing").Return(nil, nil)
	reader.On("GetBookingRefundState", mock.Anything, "broken").Return(nil, errors.New("connection refused"))
	router := newTestRouter(&mockProcessor{}, reader, nil)

	get := func(id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/"+id+"/payment", nil))
		return w
	}

	w := get("b1")
	require.Equal(t, http.StatusOK, w.Code)
	var state models.RefundState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, int64(4000), state.RefundAmountCents)
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, state.PaymentStatus)

	assert.Equal(t, http.StatusNotFound, get("missing").Code)
	assert.Equal(t, http.StatusInternalServerError, get("broken").Code)
}

func TestReadinessCheck(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	w := httptest.NewRecorder()
	newTestRouter(&mockProcessor{}, &mockReader{}, map[string]Pinger{"postgres": healthy, "redis": healthy}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newTestRouter(&mockProcessor{}, &mockReader{}, map[string]Pinger{"postgres": healthy, "redis": down}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&mockProcessor{}, &mockReader{}, nil).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func getJSON(t *testing.T, router http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestGetBookingExposesNullableFields(t *testing.T) {
	paidAt := time.Date(2024, 5, 29, 16, 26, 40, 0, time.UTC)
	reader := &mockReader{}
	reader.On("GetBooking", mock.Anything, "b1").Return(&models.Booking{
		ID:                  "b1",
		Status:              models.BookingStatusConfirmed,
		PaymentStatus:       models.PaymentStatusPaid,
		PaymentIntentID:     sql.NullString{String: "pi_1", Valid: true},
		PaymentMethodType:   sql.NullString{String: "CARD", Valid: true},
		CapturedAmountCents: 10000,
		PaidAt:              sql.NullTime{Time: paidAt, Valid: true},
	}, nil)
	reader.On("GetBooking", mock.Anything, "missing").Return(nil, nil)
	router := newTestRouter(&mockProcessor{}, reader, nil)

	code, body := getJSON(t, router, "/api/v1/bookings/b1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pi_1", body["payment_intent_id"])
	assert.Equal(t, "CARD", body["payment_method_type"])
	assert.Nil(t, body["payment_method_id"])
	assert.Nil(t, body["payment_failure_reason"])
	assert.Equal(t, "2024-05-29T16:26:40Z", body["paid_at"])
	assert.EqualValues(t, 10000, body["captured_amount_cents"])

	code, _ = getJSON(t, router, "/api/v1/bookings/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetTenantBilling(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetBillingState", mock.Anything, "t1").Return(&models.BillingState{
		TenantID:         "t1",
		Status:           models.BillingStatusActive,
		PlanTier:         "pro",
		StripeCustomerID: sql.NullString{String: "cus_1", Valid: true},
	}, nil)
	reader.On("GetBillingState", mock.Anything, "t2").Return(nil, nil)
	reader.On("GetBillingState", mock.Anything, "t3").Return(nil, errors.New("connection refused"))
	router := newTestRouter(&mockProcessor{}, reader, nil)

	code, body := getJSON(t, router, "/api/v1/tenants/t1/billing")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.BillingStatusActive, body["status"])
	assert.Equal(t, "cus_1", body["stripe_customer_id"])
	assert.Nil(t, body["stripe_subscription_id"])

	code, _ = getJSON(t, router, "/api/v1/tenants/t2/billing")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = getJSON(t, router, "/api/v1/tenants/t3/billing")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestGetPaymentTransactions(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetLedgerEntry", mock.Anything, "pi_1", models.TransactionTypeCharge).Return(&models.PaymentTransaction{
		PaymentIntentID:   "pi_1",
		TransactionType:   models.TransactionTypeCharge,
		Status:            models.TransactionStatusSucceeded,
		BookingID:         sql.NullString{String: "b1", Valid: true},
		ProcessorFeeCents: sql.NullInt64{Int64: 320, Valid: true},
	}, nil)
	reader.On("GetLedgerEntry", mock.Anything, "pi_1", models.TransactionTypeRefund).Return(nil, nil)
	reader.On("GetLedgerEntry", mock.Anything, "pi_2", mock.Anything).Return(nil, nil)
	router := newTestRouter(&mockProcessor{}, reader, nil)

	code, body := getJSON(t, router, "/api/v1/payment-intents/pi_1/transactions")
	require.Equal(t, http.StatusOK, code)
	transactions, ok := body["transactions"].([]any)
	require.True(t, ok)
	require.Len(t, transactions, 1)
	charge := transactions[0].(map[string]any)
	assert.Equal(t, models.TransactionTypeCharge, charge["transaction_type"])
	assert.Equal(t, "b1", charge["booking_id"])
	assert.EqualValues(t, 320, charge["processor_fee_cents"])

	code, _ = getJSON(t, router, "/api/v1/payment-intents/pi_2/transactions")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetProcessedEvent(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetProcessedEvent", mock.Anything, "evt_1").Return(&models.ProcessedEvent{
		EventID:     "evt_1",
		EventType:   models.EventTypeChargeRefunded,
		ProcessedAt: time.Date(2024, 5, 29, 16, 26, 40, 0, time.UTC),
	}, nil)
	reader.On("GetProcessedEvent", mock.Anything, "evt_2").Return(nil, nil)
	router := newTestRouter(&mockProcessor{}, reader, nil)

	code, body := getJSON(t, router, "/api/v1/events/evt_1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.EventTypeChargeRefunded, body["event_type"])

	code, _ = getJSON(t, router, "/api/v1/events/evt_2")
	assert.Equal(t, http.StatusNotFound, code)
}
