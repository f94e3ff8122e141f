package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"

	"litmus/internal/types"
)

const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API with form-encoded requests routed
// through BaseClient.
type StripeClient struct {
	base       *BaseClient
	secretKey  string
	baseURL    string
	logger     *slog.Logger
	newIdemKey func() string
}

// NewStripeClient creates a StripeClient. The httpClient timeout bounds each
// attempt; retries are governed by the BaseClient policy.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig, opts ...BaseClientOption) *StripeClient {
	opts = append([]BaseClientOption{WithUserAgent("Litmus-Billing/1.0")}, opts...)
	return NewStripeClientWithBase(NewBaseClient(httpClient, "stripe", opts...), cfg)
}

// NewStripeClientWithBase creates a StripeClient on a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:       base,
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
		newIdemKey: uuid.NewString,
	}
}

// CreateCheckoutSession opens a hosted subscription checkout and returns its
// redirect URL and session id.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p types.CheckoutSessionParams) (checkoutURL string, sessionID string, err error) {
	params := url.Values{}
	params.Set("mode", "subscription")
	params.Set("payment_method_types[0]", "card")
	params.Set("customer_email", p.Email)
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	params.Set("line_items[0][quantity]", "1")

	if p.PriceID != "" {
		params.Set("line_items[0][price]", p.PriceID)
	} else {
		params.Set("line_items[0][price_data][currency]", p.Currency)
		params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.AmountCents, 10))
		params.Set("line_items[0][price_data][recurring][interval]", p.Interval)
		params.Set("line_items[0][price_data][product_data][name]", p.PlanName)
		if p.Description != "" {
			params.Set("line_items[0][price_data][product_data][description]", p.Description)
		}
	}

	meta := map[string]string{
		"plan_id": string(p.Plan),
		"email":   p.Email,
	}
	if p.UserID != "" {
		meta["user_id"] = p.UserID
	}
	for k, v := range meta {
		params.Set("metadata["+k+"]", v)
		params.Set("subscription_data[metadata]["+k+"]", v)
	}

	var session stripeCheckoutSession
	if err := s.post(ctx, "CreateCheckoutSession", "/v1/checkout/sessions", params, &session); err != nil {
		return "", "", err
	}
	return session.URL, session.ID, nil
}

// CreatePortalSession opens a hosted billing portal session for customerID.
func (s *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	var session stripePortalSession
	if err := s.post(ctx, "CreatePortalSession", "/v1/billing_portal/sessions", params, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

// GetSubscription retrieves a subscription by id. A missing subscription is
// reported as ErrCodeNotFoundSubscription.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	var sub stripeSubscription
	if err := s.get(ctx, "GetSubscription", "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, err
	}
	return mapStripeSubscription(&sub), nil
}

// FindActiveSubscription returns the first active subscription of a customer,
// or nil when there is none.
func (s *StripeClient) FindActiveSubscription(ctx context.Context, customerID string) (*types.Subscription, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "active")
	q.Set("limit", "1")

	var list stripeSubscriptionList
	if err := s.get(ctx, "FindActiveSubscription", "/v1/subscriptions", q, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return mapStripeSubscription(&list.Data[0]), nil
}

// Product is the part of a Stripe product the diagnostics check reports.
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ListProducts lists up to limit products. It doubles as a credentials check.
func (s *StripeClient) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var list struct {
		Data []Product `json:"data"`
	}
	if err := s.get(ctx, "ListProducts", "/v1/products", q, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) get(ctx context.Context, op, path string, q url.Values, out any) error {
	reqURL := s.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, op+": failed to build request", err)
	}
	s.setAuthHeaders(req)
	return s.do(req, op, out)
}

// post sends a form-encoded body. Every POST carries a fresh Idempotency-Key
// so a BaseClient retry cannot create a second object.
func (s *StripeClient) post(ctx context.Context, op, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, op+": failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", s.newIdemKey())
	s.setAuthHeaders(req)
	return s.do(req, op, out)
}

func (s *StripeClient) do(req *http.Request, op string, out any) error {
	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(req.Context(), resp, op)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, op+": failed to decode Stripe response", err)
	}
	return nil
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

func (s *StripeClient) handleErrorResponse(ctx context.Context, resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed stripeErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", op, resp.StatusCode), err)
	}

	s.logger.WarnContext(ctx, "stripe request rejected",
		"operation", op,
		"status", resp.StatusCode,
		"stripe_type", parsed.Error.Type,
		"stripe_code", parsed.Error.Code,
	)
	return mapStripeError(op, resp.StatusCode, &parsed.Error)
}

// mapStripeError sorts a Stripe error body into the categories callers report:
// authentication, missing resource, invalid request and everything else.
func mapStripeError(op string, statusCode int, e *stripeErrorBody) *types.AppError {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || e.Type == "authentication_error":
		return types.NewAppError(types.ErrCodeUpstreamStripeAuth, op+": Stripe authentication failed", nil).
			WithDetails("Invalid API key")
	case statusCode == http.StatusNotFound || e.Code == "resource_missing":
		return types.NewAppError(types.ErrCodeNotFoundSubscription, op+": Stripe resource not found", nil).
			WithDetails(msg)
	case e.Type == "invalid_request_error" || statusCode == http.StatusBadRequest:
		return types.NewAppError(types.ErrCodeUpstreamStripeInvalid, op+": invalid Stripe request", nil).
			WithDetails(msg)
	default:
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d)", op, statusCode), nil).WithDetails(msg)
	}
}

// wrapTransportError converts BaseClient failures (network, open breaker,
// exhausted retries) into the connectivity category.
func (s *StripeClient) wrapTransportError(op string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeInternalUnexpected {
		return appErr
	}
	return types.NewAppError(types.ErrCodeUpstreamStripeConnectivity, op+": cannot reach Stripe", err).
		WithDetails("Network error")
}

// ---------------------------------------------------------------------------
// Stripe Response Types
// ---------------------------------------------------------------------------

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID                string                  `json:"id"`
	Customer          string                  `json:"customer"`
	Status            string                  `json:"status"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64                   `json:"current_period_end"`
	Metadata          map[string]string       `json:"metadata"`
	Items             stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	CurrentPeriodEnd int64       `json:"current_period_end"`
	Price            stripePrice `json:"price"`
}

type stripePrice struct {
	ID         string            `json:"id"`
	UnitAmount int64             `json:"unit_amount"`
	Currency   string            `json:"currency"`
	Metadata   map[string]string `json:"metadata"`
	Recurring  *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// mapStripeSubscription reduces a subscription to the status reader's view.
// Newer API versions report current_period_end on items only, so the first
// item is the fallback. Price metadata wins over subscription metadata for
// the plan hint.
func mapStripeSubscription(sub *stripeSubscription) *types.Subscription {
	out := &types.Subscription{
		ID:                sub.ID,
		CustomerID:        sub.Customer,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PlanHint:          sub.Metadata["plan_id"],
	}

	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.UnitAmountCents = item.Price.UnitAmount
		out.Currency = item.Price.Currency
		if item.Price.Recurring != nil {
			out.Interval = item.Price.Recurring.Interval
		}
		if hint := item.Price.Metadata["plan_id"]; hint != "" {
			out.PlanHint = hint
		}
		if out.CurrentPeriodEnd == 0 {
			out.CurrentPeriodEnd = item.CurrentPeriodEnd
		}
	}
	return out
}
