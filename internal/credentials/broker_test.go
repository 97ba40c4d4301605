package credentials

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

var testPrincipal = model.Principal{Subject: "alice", ActorType: model.ActorUser}

func TestVaultWinsOverExchange(t *testing.T) {
	b := New([]byte("secret"), "gateway")
	b.ConfigureVault("srv", "vault-cred-123")
	b.ConfigureExchange("srv", "https://srv.example")

	handling, token, err := b.Resolve("srv", testPrincipal, "client-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handling.Mode != model.TokenVault {
		t.Errorf("mode = %s, want vault", handling.Mode)
	}
	if token != "vault-cred-123" {
		t.Errorf("token = %q, want vault credential", token)
	}
}

func TestExchangeMintsBoundToken(t *testing.T) {
	secret := []byte("signing-secret")
	b := New(secret, "gateway")
	b.ConfigureExchange("srv", "https://srv.example")

	handling, token, err := b.Resolve("srv", testPrincipal, "client-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handling.Mode != model.TokenExchanged {
		t.Errorf("mode = %s, want exchanged", handling.Mode)
	}
	if handling.Audience != "https://srv.example" {
		t.Errorf("audience = %q", handling.Audience)
	}
	if token == "client-token" {
		t.Fatal("minted token must not equal the client token")
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience("https://srv.example"),
		jwt.WithIssuer("gateway"),
	)
	if err != nil || !parsed.Valid {
		t.Fatalf("minted token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if sub, _ := claims.GetSubject(); sub != "alice" {
		t.Errorf("sub = %q, want alice", sub)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		t.Fatal("minted token must carry an expiry")
	}
	if time.Until(exp.Time) > DefaultExchangeTTL+time.Minute {
		t.Errorf("expiry too far out: %v", exp.Time)
	}
}

func TestMintFailureWithoutSecret(t *testing.T) {
	b := New(nil, "gateway")
	b.ConfigureExchange("srv", "https://srv.example")

	if _, _, err := b.Resolve("srv", testPrincipal, ""); err == nil {
		t.Fatal("expected error when no signing secret is configured")
	}
}

func TestUnconfiguredServerBlocks(t *testing.T) {
	b := New([]byte("secret"), "gateway")

	handling, token, err := b.Resolve("mystery", testPrincipal, "client-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handling.Mode != model.TokenBlocked {
		t.Errorf("mode = %s, want blocked", handling.Mode)
	}
	if !handling.PassthroughDetected {
		t.Error("client token with no handling should flag passthrough")
	}
	if token != "" {
		t.Errorf("blocked resolution must carry no token, got %q", token)
	}
}

func TestNoClientTokenNoPassthroughFlag(t *testing.T) {
	b := New([]byte("secret"), "gateway")

	handling, _, err := b.Resolve("srv", testPrincipal, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handling.PassthroughDetected {
		t.Error("no client token, nothing to pass through")
	}
}

func TestExplicitPassthrough(t *testing.T) {
	b := New([]byte("secret"), "gateway")
	b.AllowPassthrough("legacy")

	handling, token, err := b.Resolve("legacy", testPrincipal, "client-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handling.PassthroughDetected {
		t.Error("sanctioned forwarding must not be flagged as detected passthrough")
	}
	if token != "client-token" {
		t.Errorf("token = %q, want forwarded client token", token)
	}
}

func TestVaultEqualClientTokenRejected(t *testing.T) {
	b := New([]byte("secret"), "gateway")
	b.ConfigureVault("srv", "same-token")

	if _, _, err := b.Resolve("srv", testPrincipal, "same-token"); err == nil {
		t.Fatal("vault credential identical to client token must be rejected")
	}
}
