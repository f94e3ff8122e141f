package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"litmus/internal/types"
)

const userColumns = "id,email,subscription_tier,stripe_customer_id,stripe_subscription_id,subscription_status,last_subscription_event_at,updated_at"

// SupabaseConfig configures a SupabaseUserStore.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string // defaults to "users"
	Logger         *slog.Logger
}

// SupabaseUserStore reads and writes the billing columns of the users table
// through the PostgREST gateway with the service role key.
//
// Writes carry the event timestamp and only match rows whose
// last_subscription_event_at is null or not newer, so an older webhook
// delivery never overwrites a newer one.
type SupabaseUserStore struct {
	base    *BaseClient
	restURL string
	key     string
	logger  *slog.Logger
}

// NewSupabaseUserStore creates a store. httpClient must carry a timeout.
func NewSupabaseUserStore(httpClient *http.Client, cfg SupabaseConfig, opts ...BaseClientOption) *SupabaseUserStore {
	opts = append([]BaseClientOption{WithUserAgent("Litmus-Billing/1.0")}, opts...)
	table := cfg.Table
	if table == "" {
		table = "users"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SupabaseUserStore{
		base:    NewBaseClient(httpClient, "supabase", opts...),
		restURL: strings.TrimSuffix(cfg.URL, "/") + "/rest/v1/" + table,
		key:     cfg.ServiceRoleKey,
		logger:  logger,
	}
}

type supabaseUserRow struct {
	ID                      string     `json:"id"`
	Email                   string     `json:"email"`
	SubscriptionTier        *string    `json:"subscription_tier"`
	StripeCustomerID        *string    `json:"stripe_customer_id"`
	StripeSubscriptionID    *string    `json:"stripe_subscription_id"`
	SubscriptionStatus      *string    `json:"subscription_status"`
	LastSubscriptionEventAt *time.Time `json:"last_subscription_event_at"`
	UpdatedAt               *time.Time `json:"updated_at"`
}

func (r *supabaseUserRow) record() *types.UserSubscriptionRecord {
	rec := &types.UserSubscriptionRecord{
		UserID:                  r.ID,
		Email:                   r.Email,
		SubscriptionTier:        types.PlanFree,
		StripeSubscriptionID:    r.StripeSubscriptionID,
		LastSubscriptionEventAt: r.LastSubscriptionEventAt,
	}
	if r.SubscriptionTier != nil {
		rec.SubscriptionTier = types.PlanID(*r.SubscriptionTier)
	}
	if r.StripeCustomerID != nil {
		rec.StripeCustomerID = *r.StripeCustomerID
	}
	if r.SubscriptionStatus != nil {
		rec.SubscriptionStatus = types.SubscriptionStatus(*r.SubscriptionStatus)
	}
	if r.UpdatedAt != nil {
		rec.UpdatedAt = *r.UpdatedAt
	}
	return rec
}

// likeEscaper escapes LIKE metacharacters; backslash is the Postgres default
// escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// emailFilter matches email case-insensitively, like lower(email) = lower($1)
// in the Postgres store. PostgREST rewrites * to % in like patterns and offers
// no escape for it, so an address containing * falls back to exact equality.
func emailFilter(email string) string {
	if strings.Contains(email, "*") {
		return "eq." + email
	}
	return "ilike." + likeEscaper.Replace(email)
}

// FindByEmail returns the user with the given email, or an
// ErrCodeNotFoundUser error. The match ignores case.
func (s *SupabaseUserStore) FindByEmail(ctx context.Context, email string) (*types.UserSubscriptionRecord, error) {
	q := url.Values{}
	q.Set("select", userColumns)
	q.Set("email", emailFilter(email))
	q.Set("limit", "1")

	var rows []supabaseUserRow
	if err := s.send(ctx, http.MethodGet, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if len(rows) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user with this email", nil)
	}
	return rows[0].record(), nil
}

// ActivateSubscription writes the checkout result onto a user row.
// It reports false when a newer event already updated the row.
func (s *SupabaseUserStore) ActivateSubscription(ctx context.Context, userID string, a types.SubscriptionActivation) (bool, error) {
	q := guardFilter(a.EventAt)
	q.Set("id", "eq."+userID)

	patch := map[string]any{
		"subscription_tier":          a.Tier,
		"stripe_customer_id":         a.CustomerID,
		"stripe_subscription_id":     nullable(a.SubscriptionID),
		"subscription_status":        types.SubStatusActive,
		"last_subscription_event_at": a.EventAt.UTC(),
		"updated_at":                 time.Now().UTC(),
	}
	return s.patch(ctx, "activate subscription", q, patch)
}

// UpdateSubscriptionStatus sets the status of the user holding subscriptionID.
func (s *SupabaseUserStore) UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus, eventAt time.Time) (bool, error) {
	q := guardFilter(eventAt)
	q.Set("stripe_subscription_id", "eq."+subscriptionID)

	patch := map[string]any{
		"subscription_status":        status,
		"last_subscription_event_at": eventAt.UTC(),
		"updated_at":                 time.Now().UTC(),
	}
	return s.patch(ctx, "update subscription status", q, patch)
}

// CancelSubscription downgrades the user holding subscriptionID to free.
func (s *SupabaseUserStore) CancelSubscription(ctx context.Context, subscriptionID string, eventAt time.Time) (bool, error) {
	q := guardFilter(eventAt)
	q.Set("stripe_subscription_id", "eq."+subscriptionID)

	patch := map[string]any{
		"subscription_tier":          types.PlanFree,
		"subscription_status":        types.SubStatusCancelled,
		"stripe_subscription_id":     nil,
		"last_subscription_event_at": eventAt.UTC(),
		"updated_at":                 time.Now().UTC(),
	}
	return s.patch(ctx, "cancel subscription", q, patch)
}

// Ping checks that the gateway answers for the users table.
func (s *SupabaseUserStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	var rows []json.RawMessage
	return s.send(ctx, http.MethodGet, q, nil, &rows)
}

// guardFilter matches rows that have no event yet or whose last event is not
// newer than eventAt.
func guardFilter(eventAt time.Time) url.Values {
	q := url.Values{}
	q.Set("or", fmt.Sprintf("(last_subscription_event_at.is.null,last_subscription_event_at.lte.%s)",
		eventAt.UTC().Format(time.RFC3339)))
	q.Set("select", "id")
	return q
}

func (s *SupabaseUserStore) patch(ctx context.Context, op string, q url.Values, body map[string]any) (bool, error) {
	var rows []json.RawMessage
	if err := s.send(ctx, http.MethodPatch, q, body, &rows); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		s.logger.InfoContext(ctx, "user store write matched no rows", "operation", op)
		return false, nil
	}
	return true, nil
}

func (s *SupabaseUserStore) send(ctx context.Context, method string, q url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode user store request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.restURL+"?"+q.Encode(), reader)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build user store request", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return types.NewAppError(types.ErrCodeUpstreamUserStore,
			fmt.Sprintf("user store returned %d", resp.StatusCode), nil).WithDetails(string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUserStore, "failed to decode user store response", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
