package model

// TrustLevel classifies how much a declaring server is trusted.
type TrustLevel string

const (
	TrustInternal  TrustLevel = "internal"
	TrustVerified  TrustLevel = "verified"
	TrustCommunity TrustLevel = "community"
	TrustUnknown   TrustLevel = "unknown"
)

// RiskCategory classifies the blast radius of a tool or command.
type RiskCategory string

const (
	RiskLow      RiskCategory = "LOW"
	RiskMedium   RiskCategory = "MEDIUM"
	RiskHigh     RiskCategory = "HIGH"
	RiskCritical RiskCategory = "CRITICAL"
)

// RiskRank maps risk categories to comparable integers for ceiling checks.
var RiskRank = map[RiskCategory]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// ActorType identifies what kind of caller a principal is.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// DecisionResult is the terminal outcome of the pipeline for one request.
type DecisionResult string

const (
	Allow           DecisionResult = "allow"
	Deny            DecisionResult = "deny"
	RequireApproval DecisionResult = "require_approval"
)

// ReasonCode is a member of the closed, versioned reason enumeration.
// The set is append-only across versions; codes are never reused.
type ReasonCode string

const (
	AllowPolicyMatch       ReasonCode = "ALLOW_POLICY_MATCH"
	DenyNoAuthn            ReasonCode = "DENY_NO_AUTHN"
	DenyInvalidToken       ReasonCode = "DENY_INVALID_TOKEN"
	DenyNoPermission       ReasonCode = "DENY_NO_PERMISSION"
	DenyToolNotFound       ReasonCode = "DENY_TOOL_NOT_FOUND"
	DenyNoMatchingRule     ReasonCode = "DENY_NO_MATCHING_RULE"
	DenyUnknownFields      ReasonCode = "DENY_UNKNOWN_FIELDS"
	DenyPayloadTooLarge    ReasonCode = "DENY_PAYLOAD_TOO_LARGE"
	DenyPathTraversal      ReasonCode = "DENY_PATH_TRAVERSAL"
	DenyKillSwitch         ReasonCode = "DENY_KILL_SWITCH"
	DenyPassthroughBlocked ReasonCode = "DENY_PASSTHROUGH_BLOCKED"
	ReasonRequireApproval  ReasonCode = "REQUIRE_APPROVAL"
)

// TokenMode describes how an upstream credential was obtained.
type TokenMode string

const (
	TokenExchanged TokenMode = "exchanged"
	TokenVault     TokenMode = "vault"
	TokenBlocked   TokenMode = "blocked"
	TokenNone      TokenMode = "none"
)

// Principal is an authenticated identity. Created at authentication time,
// never mutated, discarded at end of request.
type Principal struct {
	Subject   string    `json:"sub"`
	ActorType ActorType `json:"actor_type"`
	ClientID  string    `json:"client_id,omitempty"`
	OrgID     string    `json:"org_id,omitempty"`
}

// Anonymous is the principal attributed to unauthenticated requests.
// Authentication failures are still receipted.
func Anonymous() Principal {
	return Principal{Subject: "anonymous", ActorType: ActorUser}
}

// ToolEntry is one capability in the registry, keyed by (server_id, tool_name).
type ToolEntry struct {
	ServerID     string         `json:"server_id"`
	ToolName     string         `json:"tool_name"`
	TrustLevel   TrustLevel     `json:"trust_level"`
	RiskCategory RiskCategory   `json:"risk_category"`
	Schema       map[string]any `json:"schema,omitempty"`
}

// Decision is the immutable value produced by the pipeline stage that
// terminates a request.
type Decision struct {
	Result      DecisionResult `json:"result"`
	ReasonCodes []ReasonCode   `json:"reason_codes"`
	PolicyID    string         `json:"policy_id,omitempty"`
}

// Denied builds a deny decision with the given reason codes.
func Denied(codes ...ReasonCode) Decision {
	return Decision{Result: Deny, ReasonCodes: codes}
}

// Allowed builds the standard allow decision.
func Allowed() Decision {
	return Decision{Result: Allow, ReasonCodes: []ReasonCode{AllowPolicyMatch}}
}

// NeedsApproval builds the require_approval decision. This is a distinct
// outcome from deny and must stay representable separately.
func NeedsApproval() Decision {
	return Decision{Result: RequireApproval, ReasonCodes: []ReasonCode{ReasonRequireApproval}}
}

// HasDenyReason reports whether any reason code on the decision is a deny code.
func (d Decision) HasDenyReason() bool {
	for _, rc := range d.ReasonCodes {
		if len(rc) > 5 && rc[:5] == "DENY_" {
			return true
		}
	}
	return false
}

// TokenHandling records how the caller's credential was handled.
// Invariant: PassthroughDetected is never true on an allow receipt.
type TokenHandling struct {
	Mode                TokenMode `json:"mode"`
	PassthroughDetected bool      `json:"passthrough_detected"`
	Audience            string    `json:"audience,omitempty"`
}

// NoToken is the token handling for requests that name no upstream target.
func NoToken() TokenHandling {
	return TokenHandling{Mode: TokenNone}
}
