package authn

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// JWT verifies HMAC-signed tokens. Expiry and not-before are enforced by the
// jwt library during parsing.
type JWT struct {
	secret []byte
	issuer string
}

// NewJWT creates a JWT authenticator verifying against the given HMAC secret.
// When issuer is non-empty, the token's iss claim must match.
func NewJWT(secret []byte, issuer string) *JWT {
	return &JWT{secret: secret, issuer: issuer}
}

// Authenticate parses and verifies the token, then maps its claims to a
// Principal. Any parse or verification failure is ErrInvalidToken.
func (a *JWT) Authenticate(token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, ErrNoAuthn
	}
	token = StripBearer(token)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, ErrInvalidToken
	}

	claims := Claims{
		Subject:   stringClaim(mc, "sub"),
		ActorType: model.ActorType(stringClaim(mc, "actor_type")),
		ClientID:  stringClaim(mc, "client_id"),
		OrgID:     stringClaim(mc, "org_id"),
	}
	if claims.Subject == "" {
		return model.Principal{}, ErrInvalidToken
	}

	return principalFromClaims(claims), nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	if v, ok := mc[key].(string); ok {
		return v
	}
	return ""
}
