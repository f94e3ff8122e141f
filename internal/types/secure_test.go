package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "sk_test_51Hxyz0123456789abcd"

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString(testSecret)

	if got := s.String(); got != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", got, redactedPlaceholder)
	}
	for _, verb := range []string{"%s", "%v", "%+v"} {
		if out := fmt.Sprintf(verb, s); strings.Contains(out, testSecret) {
			t.Errorf("fmt verb %s leaked the raw secret: %s", verb, out)
		}
	}

	payload := struct {
		Key SecretString `json:"key"`
	}{Key: s}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON leaked the raw secret: %s", data)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	if got := SecretString(testSecret).Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q, want %q", got, testSecret)
	}
}

func TestSecretString_Preview(t *testing.T) {
	tests := []struct {
		in   SecretString
		want string
	}{
		{"", "missing"},
		{"whsec_short", "set"},
		{testSecret, "sk_test...abcd"},
	}
	for _, tt := range tests {
		if got := tt.in.Preview(); got != tt.want {
			t.Errorf("Preview(%d chars) = %q, want %q", len(tt.in), got, tt.want)
		}
	}
	if SecretString("").IsSet() {
		t.Error("empty secret reported as set")
	}
}
