package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"litmus/internal/billing"
	"litmus/internal/core"
	"litmus/internal/external"
	"litmus/internal/types"
)

var errUserStoreNotConfigured = types.NewAppError(types.ErrCodeConfigUserStore, "User store is not configured", nil).
	WithHint("Set DATABASE_URL, or SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY.")

// EntitlementResponse is the body of GET entitlement.
type EntitlementResponse struct {
	Tier         types.PlanID `json:"tier"`
	RequiredTier types.PlanID `json:"required_tier"`
	HasAccess    bool         `json:"has_access"`
	Message      string       `json:"message,omitempty"`
}

type entitlementQuery struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// EntitlementHandler answers whether a user's stored subscription tier covers
// a required tier. Content services call it before serving gated material.
type EntitlementHandler struct {
	store     external.UserStore // nil when no user store is configured
	catalog   *billing.Catalog
	validator *core.Validator
	logger    *slog.Logger
}

// NewEntitlementHandler creates an EntitlementHandler. store may be nil.
func NewEntitlementHandler(store external.UserStore, catalog *billing.Catalog, v *core.Validator, l *slog.Logger) *EntitlementHandler {
	if l == nil {
		l = slog.Default()
	}
	if catalog == nil {
		catalog = billing.DefaultCatalog()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &EntitlementHandler{store: store, catalog: catalog, validator: v, logger: l}
}

func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/entitlement", h.GetEntitlement)
}

// GetEntitlement handles GET entitlement?email=&required_tier=. The email
// falls back to the verified identity when the query omits it.
func (h *EntitlementHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawRequired := strings.TrimSpace(r.URL.Query().Get("required_tier"))
	if rawRequired == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing parameter", nil).
			WithDetails("Please provide required_tier"))
		return
	}
	required, ok := h.catalog.Tier(rawRequired)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationUnknownPlan, "Unknown tier", nil).
			WithDetails(fmt.Sprintf("%q is not a plan in the catalog", rawRequired)))
		return
	}

	q := entitlementQuery{Email: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))}
	if q.Email == "" {
		if identity, ok := types.GetIdentity(ctx); ok {
			q.Email = strings.ToLower(strings.TrimSpace(identity.Email))
		}
	}
	if q.Email == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing parameter", nil).
			WithDetails("Please provide email"))
		return
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.store == nil {
		core.Error(w, r, errUserStoreNotConfigured)
		return
	}

	user, err := h.store.FindByEmail(ctx, q.Email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundUser, "User not found", nil))
			return
		}
		h.logger.ErrorContext(ctx, "entitlement lookup failed", "error", err)
		core.Error(w, r, err)
		return
	}

	tier, known := h.catalog.Tier(string(user.SubscriptionTier))
	if !known {
		h.logger.WarnContext(ctx, "user has an unknown subscription tier; treating as free",
			"user_id", user.UserID,
			"tier", user.SubscriptionTier,
		)
		tier = types.PlanFree
	}

	resp := EntitlementResponse{
		Tier:         tier,
		RequiredTier: required,
		HasAccess:    h.catalog.HasAccess(string(tier), string(required)),
	}
	if !resp.HasAccess {
		name := string(required)
		if p, ok := h.catalog.Lookup(string(required)); ok {
			name = p.Name
		}
		resp.Message = fmt.Sprintf("This content is available to %s plans. Upgrade your subscription to continue.", name)
	}

	core.JSON(w, r, http.StatusOK, resp)
}
