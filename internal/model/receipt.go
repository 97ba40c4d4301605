package model

import "time"

// ProofTier declares the evidentiary strength a receipt claims.
// Court-tier receipts must carry a signature.
type ProofTier string

const (
	TierNone      ProofTier = "none"
	TierSimulated ProofTier = "simulated"
	TierCore      ProofTier = "core"
	TierCourt     ProofTier = "court"
)

// Namespaced receipt types. Denials are receipted as refusals so that a
// replay can cross-reference deny reasons with refusal receipts per trace.
const (
	TypeDecision  = "csp.gateway.decision/v1"
	TypeRefusal   = "csp.tool_safety.refusal.v1"
	TypeAction    = "csp.tool_safety.action.v1"
	TypeExecution = "csp.tool_safety.execution.v1"
	TypePlan      = "csp.tool_safety.plan.v1"
	TypeVerdict   = "csp.tool_safety.verdict.v1"
	TypeReport    = "csp.conformance_report/v1"
)

// TimestampFormat is the fixed-width UTC layout used on receipts.
// Fixed width keeps lexicographic order equal to chronological order.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// UTCNow returns the current time formatted for receipts.
func UTCNow() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// Signature is an Ed25519 signature over a receipt's hash string.
type Signature struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"key_id"`
	Sig       string `json:"sig"`
}

// PlanStep is one pre-approved action in a plan.
type PlanStep struct {
	Tool    string       `json:"tool"`
	Command string       `json:"command,omitempty"`
	Scope   string       `json:"scope"`
	Risk    RiskCategory `json:"risk"`
}

// Plan describes pre-approved intent as an ordered list of steps.
type Plan struct {
	PlanID  string     `json:"plan_id"`
	Subject string     `json:"subject"`
	Summary string     `json:"summary"`
	Steps   []PlanStep `json:"steps"`
}

// Verdict outcomes.
const (
	VerdictAllow    = "ALLOW"
	VerdictDeny     = "DENY"
	VerdictEscalate = "ESCALATE"
)

// Verdict binds an approval decision to exactly one plan by referencing that
// plan receipt's hash. It is only meaningful when Verdict == ALLOW and
// PlanHash matches an existing plan receipt.
type Verdict struct {
	VerdictID string `json:"verdict_id"`
	PlanID    string `json:"plan_id"`
	PlanHash  string `json:"plan_hash"`
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale,omitempty"`
	Authority string `json:"authority,omitempty"`
}

// Receipt is an immutable, hash-identified record of one gateway decision.
// ReceiptHash is computed over the receipt with the receipt_hash and
// signature fields excluded, then stored back into the same object.
type Receipt struct {
	ReceiptID   string    `json:"receipt_id"`
	ReceiptType string    `json:"receipt_type"`
	TraceID     string    `json:"trace_id"`
	Timestamp   string    `json:"ts"`
	ProofTier   ProofTier `json:"proof_tier"`

	Principal Principal `json:"principal"`
	Method    string    `json:"method"`

	ServerID   string       `json:"server_id,omitempty"`
	ToolName   string       `json:"tool_name,omitempty"`
	TrustLevel TrustLevel   `json:"trust_level,omitempty"`
	RiskLevel  RiskCategory `json:"risk_level,omitempty"`
	Command    string       `json:"command,omitempty"`
	Outcome    string       `json:"outcome,omitempty"`

	Decision      Decision      `json:"decision"`
	TokenHandling TokenHandling `json:"token_handling"`

	ArgsHash    string `json:"args_hash,omitempty"`
	SizeBytesIn int    `json:"size_bytes_in,omitempty"`

	SandboxFSPolicy  string `json:"sandbox_fs_policy,omitempty"`
	SandboxNetPolicy string `json:"sandbox_net_policy,omitempty"`

	PlanID  string   `json:"plan_id,omitempty"`
	Plan    *Plan    `json:"plan,omitempty"`
	Verdict *Verdict `json:"verdict,omitempty"`

	ParentHashes []string `json:"parent_hashes,omitempty"`

	ReceiptHash string     `json:"receipt_hash,omitempty"`
	Signature   *Signature `json:"signature,omitempty"`
}

// IsRefusal reports whether the receipt records a refused request.
func (r *Receipt) IsRefusal() bool {
	return r.ReceiptType == TypeRefusal || r.Decision.Result == Deny
}
