package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestGeneratePKCE(t *testing.T) {
	pkce := GeneratePKCE()

	if pkce.CodeVerifier == "" {
		t.Error("CodeVerifier is empty")
	}
	if len(pkce.CodeVerifier) < 43 {
		t.Errorf("CodeVerifier too short for RFC 7636: %d", len(pkce.CodeVerifier))
	}
	if pkce.CodeChallengeMethod != "S256" {
		t.Errorf("CodeChallengeMethod = %q, want S256", pkce.CodeChallengeMethod)
	}

	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.CodeChallenge != expected {
		t.Errorf("CodeChallenge verification failed.\nGot:  %q\nWant: %q", pkce.CodeChallenge, expected)
	}
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkce := GeneratePKCE()
		if seen[pkce.CodeVerifier] {
			t.Fatalf("duplicate code verifier generated on iteration %d", i)
		}
		seen[pkce.CodeVerifier] = true
	}
}

func TestPKCEChallenge_AuthCodeOptions(t *testing.T) {
	pkce := GeneratePKCE()
	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://auth.example.com/authorize"},
	}

	raw := cfg.AuthCodeURL("state", pkce.AuthCodeOptions()...)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	q := u.Query()
	if q.Get("code_challenge") != pkce.CodeChallenge {
		t.Errorf("code_challenge = %q, want %q", q.Get("code_challenge"), pkce.CodeChallenge)
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if len(state) != 43 {
		t.Errorf("state length = %d, want 43", len(state))
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if state == other {
		t.Error("two generated states are identical")
	}
}
