package external

import (
	"context"
	"time"

	"litmus/internal/types"
)

// BillingService abstracts the payment backend calls the HTTP handlers make.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, p types.CheckoutSessionParams) (checkoutURL string, sessionID string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error)
	FindActiveSubscription(ctx context.Context, customerID string) (*types.Subscription, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// UserStore is the subset of the users table the webhook receiver writes.
// The bool results report whether the write was applied; false means a newer
// event already touched the row or no row matched.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*types.UserSubscriptionRecord, error)
	ActivateSubscription(ctx context.Context, userID string, a types.SubscriptionActivation) (bool, error)
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus, eventAt time.Time) (bool, error)
	CancelSubscription(ctx context.Context, subscriptionID string, eventAt time.Time) (bool, error)
	Ping(ctx context.Context) error
}

var (
	_ BillingService  = (*StripeClient)(nil)
	_ WebhookVerifier = (*StripeVerifier)(nil)
	_ UserStore       = (*SupabaseUserStore)(nil)
)
