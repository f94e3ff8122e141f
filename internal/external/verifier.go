package external

import (
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// DefaultWebhookTolerance is the maximum age of a signed webhook timestamp.
const DefaultWebhookTolerance = webhook.DefaultTolerance

// StripeVerifier checks the Stripe-Signature header of webhook deliveries.
type StripeVerifier struct {
	Tolerance time.Duration
}

// NewStripeVerifier returns a verifier. A non-positive tolerance selects
// DefaultWebhookTolerance.
func NewStripeVerifier(tolerance time.Duration) *StripeVerifier {
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}
	return &StripeVerifier{Tolerance: tolerance}
}

// Verify returns nil when header is a valid signature of payload under secret
// and the signed timestamp is within tolerance.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayloadWithTolerance(payload, header, secret, v.Tolerance)
}

// SignPayload produces a Stripe-Signature header for payload, as Stripe would
// at time now. It backs local replay tooling and tests.
func SignPayload(payload []byte, secret string, now time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: now,
	})
	return signed.Header
}
