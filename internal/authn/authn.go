// Package authn resolves bearer credentials to principals. The pipeline
// fails closed: any error here is terminal for the request and is still
// receipted, attributed to the anonymous principal.
package authn

import (
	"errors"
	"strings"
	"sync"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// Sentinel failures. The orchestrator maps both to DENY_NO_AUTHN.
var (
	ErrNoAuthn      = errors.New("authn: missing authentication token")
	ErrInvalidToken = errors.New("authn: invalid authentication token")
)

// Authenticator resolves a token to a Principal or fails closed.
type Authenticator interface {
	Authenticate(token string) (model.Principal, error)
}

// StripBearer removes an optional "Bearer " prefix from a credential.
func StripBearer(token string) string {
	return strings.TrimPrefix(token, "Bearer ")
}

// Claims are the identity attributes bound to a token.
type Claims struct {
	Subject   string          `json:"sub" yaml:"sub"`
	ActorType model.ActorType `json:"actor_type" yaml:"actor_type"`
	ClientID  string          `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	OrgID     string          `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

// Static is an exact-token claim map. It is the reference implementation of
// the Authenticator contract; production deployments substitute [JWT] behind
// the same interface.
type Static struct {
	mu     sync.RWMutex
	tokens map[string]Claims
}

// NewStatic creates a Static authenticator with no valid tokens.
func NewStatic() *Static {
	return &Static{tokens: make(map[string]Claims)}
}

// AddToken registers a valid token and its claims.
func (a *Static) AddToken(token string, claims Claims) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = claims
}

// Authenticate looks up claims by exact token value.
func (a *Static) Authenticate(token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, ErrNoAuthn
	}
	token = StripBearer(token)

	a.mu.RLock()
	claims, ok := a.tokens[token]
	a.mu.RUnlock()
	if !ok {
		return model.Principal{}, ErrInvalidToken
	}

	return principalFromClaims(claims), nil
}

func principalFromClaims(c Claims) model.Principal {
	sub := c.Subject
	if sub == "" {
		sub = "unknown"
	}
	actor := c.ActorType
	if actor == "" {
		actor = model.ActorUser
	}
	return model.Principal{
		Subject:   sub,
		ActorType: actor,
		ClientID:  c.ClientID,
		OrgID:     c.OrgID,
	}
}
