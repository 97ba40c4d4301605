// Package credentials decides what token, if any, an upstream server receives.
// The client's inbound token never passes through: a server gets a vault
// credential, a freshly minted exchange token, or nothing.
package credentials

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// DefaultExchangeTTL bounds the lifetime of minted exchange tokens.
const DefaultExchangeTTL = 5 * time.Minute

// Broker resolves per-server token handling. Safe for concurrent use.
type Broker struct {
	mu          sync.RWMutex
	vault       map[string]string // serverID -> stored credential
	exchange    map[string]string // serverID -> audience
	passthrough map[string]bool   // serverID -> explicitly allowed

	signingSecret []byte
	issuer        string
	ttl           time.Duration
}

// New creates a Broker that mints exchange tokens signed with secret.
func New(secret []byte, issuer string) *Broker {
	return &Broker{
		vault:         make(map[string]string),
		exchange:      make(map[string]string),
		passthrough:   make(map[string]bool),
		signingSecret: secret,
		issuer:        issuer,
		ttl:           DefaultExchangeTTL,
	}
}

// SetExchangeTTL overrides the minted token lifetime.
func (b *Broker) SetExchangeTTL(ttl time.Duration) {
	if ttl > 0 {
		b.mu.Lock()
		b.ttl = ttl
		b.mu.Unlock()
	}
}

// ConfigureVault stores a credential to present to serverID.
func (b *Broker) ConfigureVault(serverID, credential string) {
	b.mu.Lock()
	b.vault[serverID] = credential
	b.mu.Unlock()
}

// ConfigureExchange enables minted tokens for serverID, bound to audience.
func (b *Broker) ConfigureExchange(serverID, audience string) {
	b.mu.Lock()
	b.exchange[serverID] = audience
	b.mu.Unlock()
}

// AllowPassthrough permits forwarding the client token to serverID.
// This is an explicit escape hatch; the default is blocked.
func (b *Broker) AllowPassthrough(serverID string) {
	b.mu.Lock()
	b.passthrough[serverID] = true
	b.mu.Unlock()
}

// Resolve determines the token handling for one upstream call. Vault wins
// over exchange; with neither configured the result is blocked unless
// passthrough was explicitly allowed for the server. The returned token is
// never the client's own token except in the passthrough case.
func (b *Broker) Resolve(serverID string, principal model.Principal, clientToken string) (model.TokenHandling, string, error) {
	b.mu.RLock()
	vaultCred, hasVault := b.vault[serverID]
	audience, hasExchange := b.exchange[serverID]
	allowPass := b.passthrough[serverID]
	b.mu.RUnlock()

	if hasVault {
		if clientToken != "" && vaultCred == clientToken {
			return model.TokenHandling{}, "", fmt.Errorf("credentials: vault credential for %s equals client token", serverID)
		}
		return model.TokenHandling{Mode: model.TokenVault}, vaultCred, nil
	}

	if hasExchange {
		minted, err := b.mint(principal, audience)
		if err != nil {
			return model.TokenHandling{}, "", fmt.Errorf("credentials: mint exchange token for %s: %w", serverID, err)
		}
		if clientToken != "" && minted == clientToken {
			return model.TokenHandling{}, "", fmt.Errorf("credentials: minted token for %s equals client token", serverID)
		}
		return model.TokenHandling{Mode: model.TokenExchanged, Audience: audience}, minted, nil
	}

	// Sanctioned forwarding via the explicit escape hatch is not flagged:
	// passthrough_detected marks unsanctioned forwarding only, and must
	// never appear on an allowed request.
	if allowPass && clientToken != "" {
		return model.TokenHandling{Mode: model.TokenNone}, clientToken, nil
	}

	// A client token with no configured handling would pass through; flag
	// it so the caller can refuse the request.
	return model.TokenHandling{Mode: model.TokenBlocked, PassthroughDetected: clientToken != ""}, "", nil
}

func (b *Broker) mint(principal model.Principal, audience string) (string, error) {
	if len(b.signingSecret) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": principal.Subject,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(b.ttl).Unix(),
	}
	if b.issuer != "" {
		claims["iss"] = b.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingSecret)
}
