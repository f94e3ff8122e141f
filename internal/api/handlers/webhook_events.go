package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"litmus/internal/billing"
	"litmus/internal/types"
)

// stripeEvent is the envelope of a Stripe webhook delivery. Only the fields
// the receiver acts on are decoded.
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// occurredAt is the event creation time used by the store's sequence guard.
func (e *stripeEvent) occurredAt() time.Time {
	if e.Created <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(e.Created, 0).UTC()
}

// stripeRef is a reference to another Stripe object. Webhook payloads carry
// a bare id unless the field was expanded, in which case it is an object.
type stripeRef string

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = stripeRef(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = stripeRef(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID              string    `json:"id"`
	Customer        stripeRef `json:"customer"`
	Subscription    stripeRef `json:"subscription"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// email prefers the address the customer entered at checkout, then the
// prefilled customer_email, then the email stored in metadata at creation.
func (s *checkoutSessionObject) email() string {
	candidates := []string{s.CustomerEmail, s.Metadata["email"]}
	if s.CustomerDetails != nil {
		candidates = append([]string{s.CustomerDetails.Email}, candidates...)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return strings.ToLower(c)
		}
	}
	return ""
}

type subscriptionObject struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Customer stripeRef `json:"customer"`
}

type invoiceObject struct {
	ID            string    `json:"id"`
	Customer      stripeRef `json:"customer"`
	Subscription  stripeRef `json:"subscription"`
	CustomerEmail string    `json:"customer_email"`
	AmountPaid    int64     `json:"amount_paid"`
	AmountDue     int64     `json:"amount_due"`
	Currency      string    `json:"currency"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription stripeRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID reads the top-level field and falls back to the parent
// block used by newer API versions.
func (i *invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// decodeAction turns a verified event into the action the receiver performs.
// Event types the receiver does not act on become a noOpAction.
func decodeAction(evt *stripeEvent, catalog *billing.Catalog) (webhookAction, error) {
	switch evt.Type {
	case types.EventCheckoutCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return activateSubscription{
			Email:          obj.email(),
			Plan:           checkoutPlan(catalog, obj.Metadata["plan_id"]),
			CustomerID:     string(obj.Customer),
			SubscriptionID: string(obj.Subscription),
			EventAt:        evt.occurredAt(),
		}, nil

	case types.EventSubscriptionUpdated:
		var obj subscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return updateSubscriptionStatus{
			SubscriptionID: obj.ID,
			Status:         types.SubscriptionStatus(obj.Status),
			EventAt:        evt.occurredAt(),
		}, nil

	case types.EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return cancelSubscription{
			SubscriptionID: obj.ID,
			EventAt:        evt.occurredAt(),
		}, nil

	case types.EventInvoicePaymentSucceeded, types.EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		amount := obj.AmountPaid
		if evt.Type == types.EventInvoicePaymentFailed {
			amount = obj.AmountDue
		}
		return invoiceNotification{Event: types.BillingEvent{
			EventID:        evt.ID,
			EventType:      evt.Type,
			CustomerID:     string(obj.Customer),
			SubscriptionID: obj.subscriptionID(),
			Email:          strings.ToLower(strings.TrimSpace(obj.CustomerEmail)),
			AmountCents:    amount,
			Currency:       obj.Currency,
			OccurredAt:     evt.occurredAt(),
		}}, nil

	case types.EventSubscriptionCreated:
		return noOpAction{Reason: "subscription is activated by checkout.session.completed"}, nil

	default:
		return noOpAction{Reason: "unhandled event type"}, nil
	}
}

// checkoutPlan resolves the plan_id stored on the checkout session. Absent,
// unknown and free values fall back to premium.
func checkoutPlan(catalog *billing.Catalog, raw string) types.PlanID {
	if p, ok := catalog.Lookup(raw); ok && !p.IsFree() {
		return p.ID
	}
	return types.PlanPremium
}
