// Package billing holds the plan catalog shared by checkout, the webhook
// receiver and the subscription status reader.
package billing

import (
	"cmp"
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"litmus/internal/types"
)

//go:embed plans.yaml
var plansYAML []byte

// UnconfiguredMessage is shown on paid plans when checkout cannot reach Stripe.
const UnconfiguredMessage = "Stripe secret key is missing. Set STRIPE_SECRET_KEY to enable checkout."

// Plan is a catalog entry. Prices are integer minor units.
type Plan struct {
	ID          types.PlanID `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	AmountCents int64        `yaml:"amount_cents"`
	Currency    string       `yaml:"currency"`
	Interval    string       `yaml:"billing_interval"`
	Features    []string     `yaml:"features"`
	CTA         string       `yaml:"cta"`
	Aliases     []string     `yaml:"aliases"` // legacy tier names stored on user rows
}

// IsFree reports whether the plan needs no checkout.
func (p Plan) IsFree() bool {
	return p.ID == types.PlanFree
}

// Amount returns the display price in whole currency units.
func (p Plan) Amount() float64 {
	return float64(p.AmountCents) / 100
}

// Availability describes the payment-backend state a catalog view is rendered for.
type Availability struct {
	SecretKeyPresent bool
	MockMode         bool
}

// PlanView is the wire shape of a plan returned by billing-config.
type PlanView struct {
	ID              types.PlanID `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Amount          float64      `json:"amount"`
	AmountCents     int64        `json:"amount_cents"`
	Currency        string       `json:"currency"`
	BillingInterval string       `json:"billing_interval"`
	Features        []string     `json:"features"`
	CTA             string       `json:"cta"`
	IsFree          bool         `json:"is_free"`
	CheckoutEnabled bool         `json:"checkout_enabled"`
	Configured      bool         `json:"configured"`
	StatusMessage   string       `json:"status_message,omitempty"`
}

// Catalog is an immutable, ordered set of plans.
type Catalog struct {
	plans   []Plan
	byID    map[types.PlanID]Plan
	aliases map[types.PlanID]types.PlanID
	rank    map[types.PlanID]int
}

// LoadCatalog parses a YAML plan list and checks its invariants: unique ids,
// a free plan priced at zero, and distinct prices among paid plans so that
// amount matching is unambiguous.
func LoadCatalog(data []byte) (*Catalog, error) {
	var plans []Plan
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}

	c := &Catalog{
		plans:   plans,
		byID:    make(map[types.PlanID]Plan, len(plans)),
		aliases: make(map[types.PlanID]types.PlanID),
		rank:    make(map[types.PlanID]int, len(plans)),
	}
	amounts := make(map[int64]types.PlanID)

	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan catalog: entry %q has no id", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("plan catalog: duplicate plan %q", p.ID)
		}
		if p.AmountCents < 0 {
			return nil, fmt.Errorf("plan catalog: plan %q has a negative price", p.ID)
		}
		if p.IsFree() && p.AmountCents != 0 {
			return nil, fmt.Errorf("plan catalog: free plan must cost 0, got %d", p.AmountCents)
		}
		if !p.IsFree() {
			if other, clash := amounts[p.AmountCents]; clash {
				return nil, fmt.Errorf("plan catalog: plans %q and %q share price %d", other, p.ID, p.AmountCents)
			}
			amounts[p.AmountCents] = p.ID
		}
		c.byID[p.ID] = p
	}

	if _, ok := c.byID[types.PlanFree]; !ok {
		return nil, fmt.Errorf("plan catalog: missing %q plan", types.PlanFree)
	}

	for _, p := range plans {
		for _, raw := range p.Aliases {
			alias := NormalizePlanID(raw)
			if _, clash := c.byID[alias]; clash {
				return nil, fmt.Errorf("plan catalog: alias %q of %q shadows a plan id", alias, p.ID)
			}
			if other, dup := c.aliases[alias]; dup {
				return nil, fmt.Errorf("plan catalog: alias %q used by %q and %q", alias, other, p.ID)
			}
			c.aliases[alias] = p.ID
		}
	}

	// Tiers rank by price; paid prices are distinct so the order is total.
	byPrice := slices.Clone(plans)
	slices.SortStableFunc(byPrice, func(a, b Plan) int { return cmp.Compare(a.AmountCents, b.AmountCents) })
	for i, p := range byPrice {
		c.rank[p.ID] = i
	}
	return c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := LoadCatalog(plansYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	return defaultCatalog()
}

// Plans returns the plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Lookup finds a plan by identifier, ignoring case and surrounding whitespace.
func (c *Catalog) Lookup(raw string) (Plan, bool) {
	p, ok := c.byID[NormalizePlanID(raw)]
	return p, ok
}

// NormalizePlanID trims and lower-cases a client supplied plan identifier.
func NormalizePlanID(raw string) types.PlanID {
	return types.PlanID(strings.ToLower(strings.TrimSpace(raw)))
}

// Tier maps a subscription_tier value from a user row to a plan. Empty
// means free; aliases resolve to their plan.
func (c *Catalog) Tier(raw string) (types.PlanID, bool) {
	id := NormalizePlanID(raw)
	if id == "" {
		return types.PlanFree, true
	}
	if _, ok := c.byID[id]; ok {
		return id, true
	}
	target, ok := c.aliases[id]
	return target, ok
}

// Rank orders tiers by price, free being 0. Unknown tiers rank 0.
func (c *Catalog) Rank(raw string) int {
	id, ok := c.Tier(raw)
	if !ok {
		return 0
	}
	return c.rank[id]
}

// HasAccess reports whether a user on tier current may use content that
// requires tier required.
func (c *Catalog) HasAccess(current, required string) bool {
	return c.Rank(current) >= c.Rank(required)
}

// PlanForAmount maps an exact price in cents back to a paid plan. Any other
// amount, including zero, maps to free.
func (c *Catalog) PlanForAmount(cents int64) types.PlanID {
	for _, p := range c.plans {
		if !p.IsFree() && p.AmountCents == cents {
			return p.ID
		}
	}
	return types.PlanFree
}

// Resolve prefers an explicit plan hint (subscription or price metadata) when
// it names a paid plan and falls back to amount matching.
func (c *Catalog) Resolve(hint string, cents int64) types.PlanID {
	if p, ok := c.Lookup(hint); ok && !p.IsFree() {
		return p.ID
	}
	return c.PlanForAmount(cents)
}

// Views renders the catalog for billing-config.
func (c *Catalog) Views(a Availability) []PlanView {
	paidReady := a.SecretKeyPresent || a.MockMode

	views := make([]PlanView, 0, len(c.plans))
	for _, p := range c.plans {
		v := PlanView{
			ID:              p.ID,
			Name:            p.Name,
			Description:     p.Description,
			Amount:          p.Amount(),
			AmountCents:     p.AmountCents,
			Currency:        p.Currency,
			BillingInterval: p.Interval,
			Features:        append([]string(nil), p.Features...),
			CTA:             p.CTA,
			IsFree:          p.IsFree(),
			CheckoutEnabled: true,
			Configured:      true,
		}
		if !p.IsFree() && !paidReady {
			v.Configured = false
			v.CheckoutEnabled = false
			v.StatusMessage = UnconfiguredMessage
		}
		views = append(views, v)
	}
	return views
}
