// Package handlers contains the HTTP handlers of the Litmus billing service.
//
// Every route here is public. Checkout optionally reads the caller's identity
// placed on the context by core.IdentityMiddleware; the webhook is
// authenticated by its Stripe-Signature header instead.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"litmus/internal/billing"
	"litmus/internal/config"
	"litmus/internal/core"
	"litmus/internal/external"
)

// BillingHandler serves the plan catalog, checkout, the customer portal, the
// subscription status reader and the optional Stripe diagnostics route.
type BillingHandler struct {
	stripe    external.BillingService // nil when no secret key is configured
	catalog   *billing.Catalog
	cfg       *config.Config
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. svc may be nil; the endpoints
// that need Stripe then answer with a configuration error.
func NewBillingHandler(
	svc external.BillingService,
	catalog *billing.Catalog,
	cfg *config.Config,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	if catalog == nil {
		catalog = billing.DefaultCatalog()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if v == nil {
		v = core.NewValidator(l)
	}

	return &BillingHandler{
		stripe:    svc,
		catalog:   catalog,
		cfg:       cfg,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing endpoints. The router is mounted twice by
// core.Server, at the root and under the legacy functions prefix.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/billing-config", h.GetBillingConfig)
	r.Post("/checkout-session", h.CreateCheckoutSession)
	r.Post("/customer-portal", h.CreatePortalSession)
	r.Get("/subscription-status", h.GetSubscriptionStatus)

	if h.cfg.Feature.EnableDiagnostics {
		r.Get("/test-stripe-connection", h.TestStripeConnection)
	}
}

// BillingConfigResponse is the body of GET billing-config.
type BillingConfigResponse struct {
	PublishableKey string             `json:"publishable_key"`
	Plans          []billing.PlanView `json:"plans"`
}

// GetBillingConfig returns the publishable key and the plan catalog annotated
// with whether checkout is currently possible for each plan.
func (h *BillingHandler) GetBillingConfig(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, BillingConfigResponse{
		PublishableKey: publishableKey(h.cfg.Stripe.PublishableKey),
		Plans: h.catalog.Views(billing.Availability{
			SecretKeyPresent: h.cfg.Stripe.Configured(),
			MockMode:         h.cfg.Stripe.MockEnabled(),
		}),
	})
}

// publishableKey drops anything that is not a Stripe publishable key so a
// misplaced secret never reaches the browser.
func publishableKey(raw string) string {
	key := strings.TrimSpace(raw)
	if !strings.HasPrefix(key, "pk_") {
		return ""
	}
	return key
}

// stripeReady reports whether live Stripe calls can be made.
func (h *BillingHandler) stripeReady() bool {
	return h.stripe != nil && h.cfg.Stripe.Configured()
}
