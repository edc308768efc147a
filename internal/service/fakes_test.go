package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"payment-reconciler/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ledgerKey struct {
	intentID string
	txType   string
}

type fakeLocation struct {
	tenantID string
	public   bool
	account  models.MerchantAccount
}

// fakeGateway is an in-memory Gateway with the same update semantics as the
// postgres store: updates of missing rows are no-ops, ledger writes upsert.
type fakeGateway struct {
	mu        sync.Mutex
	billing   map[string]*models.BillingState
	bookings  map[string]*models.Booking
	ledger    map[ledgerKey]*models.PaymentTransaction
	locations map[string]*fakeLocation
	processed map[string]string

	processedChecks int

	errUpsertBilling error
	errUpdateBilling error
	errUnpublish     error
	errUpdateBooking error
	errLedger        error
	errApplyRefund   error
	errMerchant      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		billing:   make(map[string]*models.BillingState),
		bookings:  make(map[string]*models.Booking),
		ledger:    make(map[ledgerKey]*models.PaymentTransaction),
		locations: make(map[string]*fakeLocation),
		processed: make(map[string]string),
	}
}

func (g *fakeGateway) addBooking(b models.Booking) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentStatusNone
	}
	if b.Status == "" {
		b.Status = models.BookingStatusPending
	}
	g.bookings[b.ID] = &b
}

func (g *fakeGateway) addLedger(intentID, bookingID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ledger[ledgerKey{intentID, models.TransactionTypeCharge}] = &models.PaymentTransaction{
		PaymentIntentID: intentID,
		TransactionType: models.TransactionTypeCharge,
		Status:          models.TransactionStatusPending,
		BookingID:       nullString(bookingID),
	}
}

func (g *fakeGateway) addLocation(id, tenantID string, public bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locations[id] = &fakeLocation{tenantID: tenantID, public: public}
}

func (g *fakeGateway) location(id string) fakeLocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.locations[id]
}

func (g *fakeGateway) billingState(tenantID string) *models.BillingState {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.billing[tenantID]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

func (g *fakeGateway) booking(id string) models.Booking {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.bookings[id]
}

func (g *fakeGateway) ledgerEntry(intentID, txType string) *models.PaymentTransaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.ledger[ledgerKey{intentID, txType}]
	if !ok {
		return nil
	}
	cp := *entry
	return &cp
}

func (g *fakeGateway) UpsertBillingState(_ context.Context, state *models.BillingState) error {
	if g.errUpsertBilling != nil {
		return g.errUpsertBilling
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *state
	g.billing[state.TenantID] = &cp
	return nil
}

func (g *fakeGateway) UpdateBillingState(_ context.Context, tenantID string, update models.BillingUpdate) error {
	if g.errUpdateBilling != nil {
		return g.errUpdateBilling
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.billing[tenantID]
	if !ok {
		return nil
	}
	if update.Status != nil {
		state.Status = *update.Status
	}
	if update.PlanTier != nil {
		state.PlanTier = *update.PlanTier
	}
	if update.LastPaymentAt != nil {
		state.LastPaymentAt = nullTime(*update.LastPaymentAt)
	}
	if update.ClearSubscriptionID {
		state.StripeSubscriptionID = nullString("")
	}
	return nil
}

func (g *fakeGateway) SetLocationsPublicFlag(_ context.Context, tenantID string, public bool) error {
	if g.errUnpublish != nil {
		return g.errUnpublish
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, loc := range g.locations {
		if loc.tenantID == tenantID {
			loc.public = public
		}
	}
	return nil
}

func (g *fakeGateway) UpdateBooking(_ context.Context, bookingID string, update models.BookingUpdate) error {
	if g.errUpdateBooking != nil {
		return g.errUpdateBooking
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bookings[bookingID]
	if !ok {
		return nil
	}
	if update.Status != nil {
		b.Status = *update.Status
	}
	if update.PaymentStatus != nil {
		b.PaymentStatus = *update.PaymentStatus
	}
	if update.PaymentIntentID != nil {
		b.PaymentIntentID = nullString(*update.PaymentIntentID)
	}
	if update.PaymentMethodID != nil {
		b.PaymentMethodID = nullString(*update.PaymentMethodID)
	}
	if update.PaymentMethodType != nil {
		b.PaymentMethodType = nullString(*update.PaymentMethodType)
	}
	if update.CapturedAmountCents != nil {
		b.CapturedAmountCents = *update.CapturedAmountCents
	}
	if update.AuthorizedAmountCents != nil {
		b.AuthorizedAmountCents = *update.AuthorizedAmountCents
	}
	if update.FailureReason != nil {
		b.PaymentFailureReason = nullString(*update.FailureReason)
	}
	if update.PaidAt != nil {
		b.PaidAt = nullTime(*update.PaidAt)
	}
	return nil
}

func (g *fakeGateway) GetBookingRefundState(_ context.Context, bookingID string) (*models.RefundState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	return &models.RefundState{
		BookingID:           b.ID,
		PaymentStatus:       b.PaymentStatus,
		CapturedAmountCents: b.CapturedAmountCents,
		RefundAmountCents:   b.RefundAmountCents,
	}, nil
}

func (g *fakeGateway) ApplyRefund(_ context.Context, bookingID string, amountCents int64) (*models.RefundState, error) {
	if g.errApplyRefund != nil {
		return nil, g.errApplyRefund
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	next := models.RefundState{
		BookingID:           b.ID,
		PaymentStatus:       b.PaymentStatus,
		CapturedAmountCents: b.CapturedAmountCents,
		RefundAmountCents:   b.RefundAmountCents,
	}.Apply(amountCents)
	b.RefundAmountCents = next.RefundAmountCents
	b.PaymentStatus = next.PaymentStatus
	return &next, nil
}

func (g *fakeGateway) UpsertLedgerEntry(_ context.Context, intentID, txType string, update models.LedgerUpdate) error {
	if g.errLedger != nil {
		return g.errLedger
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ledgerKey{intentID, txType}
	entry, ok := g.ledger[key]
	if !ok {
		entry = &models.PaymentTransaction{PaymentIntentID: intentID, TransactionType: txType}
		g.ledger[key] = entry
	}
	entry.Status = update.Status
	if update.BookingID != nil {
		entry.BookingID = nullString(*update.BookingID)
	}
	if update.StripeChargeID != nil {
		entry.StripeChargeID = nullString(*update.StripeChargeID)
	}
	if update.ProcessorFeeCents != nil {
		entry.ProcessorFeeCents.Int64, entry.ProcessorFeeCents.Valid = *update.ProcessorFeeCents, true
	}
	if update.FailureReason != nil {
		entry.FailureReason = nullString(*update.FailureReason)
	}
	if update.CompletedAt != nil {
		entry.CompletedAt = nullTime(*update.CompletedAt)
	}
	return nil
}

func (g *fakeGateway) GetLedgerEntryBookingID(_ context.Context, intentID string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.ledger[ledgerKey{intentID, models.TransactionTypeCharge}]
	if !ok || !entry.BookingID.Valid {
		return "", false, nil
	}
	return entry.BookingID.String, true, nil
}

func (g *fakeGateway) UpdateLocationMerchantAccount(_ context.Context, locationID string, account models.MerchantAccount) error {
	if g.errMerchant != nil {
		return g.errMerchant
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	loc, ok := g.locations[locationID]
	if !ok {
		return nil
	}
	loc.account = account
	return nil
}

func (g *fakeGateway) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processedChecks++
	_, ok := g.processed[eventID]
	return ok, nil
}

func (g *fakeGateway) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processed[eventID] = eventType
	return nil
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) GetSubscriptionTenant(ctx context.Context, subscriptionID string) (string, error) {
	args := m.Called(ctx, subscriptionID)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) GetPaymentMethodType(ctx context.Context, paymentMethodID string) (string, error) {
	args := m.Called(ctx, paymentMethodID)
	return args.String(0), args.Error(1)
}

type recordingPublisher struct {
	mu       sync.Mutex
	bookings []*models.BookingPaymentUpdatedEvent
	billing  []*models.BillingStateChangedEvent
	accounts []*models.MerchantAccountUpdatedEvent
	err      error
}

func (p *recordingPublisher) PublishBookingPaymentUpdated(_ context.Context, event *models.BookingPaymentUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bookings = append(p.bookings, event)
	return p.err
}

func (p *recordingPublisher) PublishBillingStateChanged(_ context.Context, event *models.BillingStateChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.billing = append(p.billing, event)
	return p.err
}

func (p *recordingPublisher) PublishMerchantAccountUpdated(_ context.Context, event *models.MerchantAccountUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = append(p.accounts, event)
	return p.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireEventLock(_ context.Context, eventID string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[eventID]; ok {
		return "", false, nil
	}
	token := "token-" + eventID
	l.held[eventID] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseEventLock(_ context.Context, eventID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[eventID] == token {
		delete(l.held, eventID)
	}
	l.released = append(l.released, eventID)
	return nil
}

const testEventCreated = int64(1717000000)

func newEnvelope(t *testing.T, id, eventType string, object map[string]any) *models.Envelope {
	t.Helper()
	data, err := json.Marshal(object)
	require.NoError(t, err)
	return &models.Envelope{ID: id, Type: eventType, Created: testEventCreated, Data: data}
}

type routerFixture struct {
	gateway   *fakeGateway
	processor *mockProcessor
	publisher *recordingPublisher
	router    *Router
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		gateway:   newFakeGateway(),
		processor: &mockProcessor{},
		publisher: &recordingPublisher{},
	}
	f.router = NewRouter(f.gateway, f.processor, f.publisher)
	return f
}
