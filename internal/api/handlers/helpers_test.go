package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"litmus/internal/config"
	"litmus/internal/core"
	"litmus/internal/external"
	"litmus/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBilling is an in-memory external.BillingService.
type fakeBilling struct {
	mu sync.Mutex

	checkoutParams []types.CheckoutSessionParams
	portalCalls    []string
	subCalls       []string
	customerCalls  []string

	checkoutURL string
	portalURL   string
	sub         *types.Subscription
	products    []external.Product
	err         error
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, p types.CheckoutSessionParams) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutParams = append(f.checkoutParams, p)
	if f.err != nil {
		return "", "", f.err
	}
	return f.checkoutURL, "cs_test_1", nil
}

func (f *fakeBilling) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalCalls = append(f.portalCalls, customerID+" "+returnURL)
	if f.err != nil {
		return "", f.err
	}
	return f.portalURL, nil
}

func (f *fakeBilling) GetSubscription(_ context.Context, id string) (*types.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls = append(f.subCalls, id)
	return f.sub, f.err
}

func (f *fakeBilling) FindActiveSubscription(_ context.Context, customerID string) (*types.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls = append(f.customerCalls, customerID)
	return f.sub, f.err
}

func (f *fakeBilling) ListProducts(context.Context, int) ([]external.Product, error) {
	return f.products, f.err
}

func (f *fakeBilling) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checkoutParams) + len(f.portalCalls) + len(f.subCalls) + len(f.customerCalls)
}

// fakeStore is an in-memory external.UserStore that applies the same
// event-timestamp guard as the real stores.
type fakeStore struct {
	mu     sync.Mutex
	users  map[string]*types.UserSubscriptionRecord
	err    error
	writes int
}

func newFakeStore(users ...types.UserSubscriptionRecord) *fakeStore {
	s := &fakeStore{users: make(map[string]*types.UserSubscriptionRecord)}
	for i := range users {
		u := users[i]
		s.users[u.Email] = &u
	}
	return s
}

func (s *fakeStore) get(email string) types.UserSubscriptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[email]
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*types.UserSubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[email]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user with this email", nil)
	}
	cp := *u
	return &cp, nil
}

func stale(u *types.UserSubscriptionRecord, at time.Time) bool {
	return u.LastSubscriptionEventAt != nil && at.Before(*u.LastSubscriptionEventAt)
}

func (s *fakeStore) ActivateSubscription(_ context.Context, userID string, a types.SubscriptionActivation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for _, u := range s.users {
		if u.UserID != userID || stale(u, a.EventAt) {
			continue
		}
		subID := a.SubscriptionID
		at := a.EventAt
		u.SubscriptionTier = a.Tier
		u.StripeCustomerID = a.CustomerID
		u.StripeSubscriptionID = &subID
		u.SubscriptionStatus = types.SubStatusActive
		u.LastSubscriptionEventAt = &at
		s.writes++
		return true, nil
	}
	return false, nil
}

func (s *fakeStore) bySubscription(subID string) *types.UserSubscriptionRecord {
	for _, u := range s.users {
		if u.StripeSubscriptionID != nil && *u.StripeSubscriptionID == subID {
			return u
		}
	}
	return nil
}

func (s *fakeStore) UpdateSubscriptionStatus(_ context.Context, subID string, status types.SubscriptionStatus, eventAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	u := s.bySubscription(subID)
	if u == nil || stale(u, eventAt) {
		return false, nil
	}
	u.SubscriptionStatus = status
	u.LastSubscriptionEventAt = &eventAt
	s.writes++
	return true, nil
}

func (s *fakeStore) CancelSubscription(_ context.Context, subID string, eventAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	u := s.bySubscription(subID)
	if u == nil || stale(u, eventAt) {
		return false, nil
	}
	u.SubscriptionTier = types.PlanFree
	u.SubscriptionStatus = types.SubStatusCancelled
	u.StripeSubscriptionID = nil
	u.LastSubscriptionEventAt = &eventAt
	s.writes++
	return true, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.err }

// fakeLedger mimics the Redis ledger's SET NX semantics.
type fakeLedger struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claimed: make(map[string]bool)}
}

func (l *fakeLedger) Claim(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return true, l.err
	}
	if l.claimed[id] {
		return false, nil
	}
	l.claimed[id] = true
	return true, nil
}

func (l *fakeLedger) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, id)
	l.released = append(l.released, id)
	return nil
}

type fakePublisher struct {
	events []types.BillingEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, evt types.BillingEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type recordingReporter struct {
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingReporter) Flush(time.Duration) bool { return true }

type recordingMetrics struct {
	events []string
}

func (m *recordingMetrics) RecordWebhookEvent(eventType, outcome string) {
	m.events = append(m.events, eventType+" "+outcome)
}

// liveConfig returns a config with a Stripe secret key and no mock mode.
func liveConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.FrontendURL = "https://app.example.com/"
	cfg.Stripe.SecretKey = "sk_test_51HxxxxxxxxxxxxxxxxxxxxABCD"
	cfg.Stripe.PublishableKey = "pk_test_123"
	return cfg
}

func newBillingHandler(svc external.BillingService, cfg *config.Config) *BillingHandler {
	return NewBillingHandler(svc, nil, cfg, core.NewValidator(testLogger()), testLogger())
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}
