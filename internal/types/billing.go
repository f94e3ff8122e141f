package types

import "time"

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPremium    PlanID = "premium"
	PlanEnterprise PlanID = "enterprise"
)

// SubscriptionStatus mirrors the status reported by the payment backend,
// plus the locally-assigned "cancelled" state written on deletion.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusPaused            SubscriptionStatus = "paused"
	SubStatusCancelled         SubscriptionStatus = "cancelled"
)

// Stripe webhook event types consumed by the webhook receiver.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// UserSubscriptionRecord is the billing slice of a row in the users table.
// SubscriptionID is nil once the subscription has been cancelled.
type UserSubscriptionRecord struct {
	UserID                  string
	Email                   string
	SubscriptionTier        PlanID
	StripeCustomerID        string
	StripeSubscriptionID    *string
	SubscriptionStatus      SubscriptionStatus
	LastSubscriptionEventAt *time.Time
	UpdatedAt               time.Time
}

// SubscriptionActivation carries the fields written when a checkout completes.
type SubscriptionActivation struct {
	Tier           PlanID
	CustomerID     string
	SubscriptionID string
	EventAt        time.Time
}

// CheckoutRequest is the body of POST checkout-session.
type CheckoutRequest struct {
	Plan   string `json:"plan"`
	Email  string `json:"email" validate:"omitempty,email,max=254"`
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// CheckoutSessionParams is what the payment backend needs to open a hosted
// checkout for a plan.
type CheckoutSessionParams struct {
	Plan        PlanID
	PlanName    string
	Description string
	AmountCents int64
	Currency    string
	Interval    string
	PriceID     string // Optional pre-created price; inline price data is used when empty.
	Email       string
	UserID      string
	SuccessURL  string
	CancelURL   string
}

// PortalRequest is the body of POST customer-portal.
type PortalRequest struct {
	CustomerID string `json:"customer_id" validate:"required,stripe_id"`
	ReturnURL  string `json:"return_url,omitempty" validate:"omitempty,http_url"`
}

// URLResponse is returned by the redirecting endpoints.
type URLResponse struct {
	URL string `json:"url"`
}

// Subscription is the payment backend's view of a subscription, reduced to
// what the status reader needs.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
	UnitAmountCents   int64
	Currency          string
	Interval          string
	PlanHint          string // plan_id metadata from the price or subscription, if any.
}

// SubscriptionSummary is the response body of GET subscription-status.
type SubscriptionSummary struct {
	HasSubscription   bool     `json:"has_subscription"`
	Plan              PlanID   `json:"plan"`
	Status            *string  `json:"status"`
	CurrentPeriodEnd  int64    `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool     `json:"cancel_at_period_end,omitempty"`
	SubscriptionID    string   `json:"subscription_id,omitempty"`
	CustomerID        string   `json:"customer_id,omitempty"`
	Amount            *float64 `json:"amount,omitempty"`
	Interval          string   `json:"interval,omitempty"`
}

// BillingEvent is the message published for invoice lifecycle events.
type BillingEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	CustomerID     string    `json:"customer_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Email          string    `json:"email,omitempty"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	RequestID      string    `json:"request_id,omitempty"`
}

// Telemetry names shared by the CloudWatch and Prometheus collectors.
const (
	MetricAPIRequest    = "APIRequest"
	MetricAPILatency    = "APILatency"
	MetricWebhookEvent  = "WebhookEvent"
	MetricBillingEvent  = "BillingEvent"
	DimEndpoint         = "Endpoint"
	DimStatus           = "Status"
	DimEventType        = "EventType"
	DimOutcome          = "Outcome"
	DefaultMetricPrefix = "Litmus"
)
