package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "whsec_live_4f9a2c"

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString(testSecret)

	for _, out := range []string{s.String(), fmt.Sprintf("%s", s), fmt.Sprintf("%v", s)} {
		if strings.Contains(out, testSecret) {
			t.Errorf("formatted output leaked the secret: %q", out)
		}
	}

	data, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{Secret: s})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON leaked the secret: %s", data)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want %q", s.Unmask(), testSecret)
	}
	if !s.IsSet() {
		t.Error("IsSet() = false for a non-empty secret")
	}
	if SecretString("").IsSet() {
		t.Error("IsSet() = true for an empty secret")
	}
}
