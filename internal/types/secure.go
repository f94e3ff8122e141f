package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (Stripe keys, webhook secrets, service role
// keys). String and MarshalJSON are redacted so the value cannot reach logs or
// JSON output by accident; Unmask returns the plaintext for the HTTP client
// or driver that genuinely needs it.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Preview renders a diagnostic fingerprint of the secret: the first seven and
// last four characters with the middle elided (sk_test...abcd). Values shorter
// than sixteen characters render only as "set" so nothing meaningful leaks.
func (s SecretString) Preview() string {
	v := string(s)
	switch {
	case v == "":
		return "missing"
	case len(v) < 16:
		return "set"
	default:
		return v[:7] + "..." + v[len(v)-4:]
	}
}
