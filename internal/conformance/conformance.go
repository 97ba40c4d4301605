// Package conformance replays a receipt log offline and checks the
// taxonomy's invariants: hash and chain integrity, refusal coverage,
// plan binding for high-risk actions, signature coverage, and ordering.
// Findings are values; a bad historical receipt never crashes the run.
package conformance

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

// maxEvidence bounds the violating receipt IDs attached per check.
const maxEvidence = 3

// CheckResult is one check's outcome.
type CheckResult struct {
	CheckID  string   `json:"check_id"`
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Details  string   `json:"details"`
	Evidence []string `json:"evidence,omitempty"`
}

// Report is the full battery's outcome over one log.
type Report struct {
	GeneratedAt   string        `json:"generated_at"`
	ReceiptCount  int           `json:"receipt_count"`
	Checks        []CheckResult `json:"checks"`
	OverallPass   bool          `json:"overall_pass"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// LoadReceipts reads a receipt log from a JSONL file, a SQLite database
// (".db"/".sqlite"), or a directory of single-receipt JSON files.
func LoadReceipts(path string) ([]model.Receipt, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("conformance: %w", err)
	}
	if info.IsDir() {
		return receipt.ReadDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		store, err := receipt.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.List("")
	}
	return receipt.ReadLog(path, "")
}

// Validate runs the fixed battery. publicKeys may be nil; signature
// verification then only checks presence where a tier demands one. An
// empty log is a failed run, reported, never a crash.
func Validate(receipts []model.Receipt, publicKeys map[string]ed25519.PublicKey) *Report {
	report := &Report{
		GeneratedAt:  model.UTCNow(),
		ReceiptCount: len(receipts),
	}

	if len(receipts) == 0 {
		report.OverallPass = false
		report.FailureReason = "no receipts found: nothing to validate"
		return report
	}

	chain := receipt.VerifyChain(receipts, publicKeys)

	report.Checks = []CheckResult{
		checkHashIntegrity(receipts, chain),
		checkChainIntegrity(receipts, chain),
		checkCriticalBlocked(receipts),
		checkRefusalCoverage(receipts),
		checkPlanBinding(receipts),
		checkSignatureCoverage(receipts, publicKeys, chain),
		checkOrdering(receipts),
	}

	report.OverallPass = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.OverallPass = false
		}
	}
	return report
}

// ReportReceipt wraps a finished report in a sealed receipt so the
// validation result itself becomes tamper-evident. When kp is non-nil the
// receipt is signed at court tier.
func ReportReceipt(report *Report, kp *receipt.KeyPair) (*model.Receipt, error) {
	tier := model.TierCore
	if kp != nil {
		tier = model.TierCourt
	}
	r := &model.Receipt{
		ReceiptID:   "report-" + report.GeneratedAt,
		ReceiptType: model.TypeReport,
		Timestamp:   model.UTCNow(),
		ProofTier:   tier,
		Principal:   model.Principal{Subject: "conformance", ActorType: model.ActorSystem},
		Method:      "conformance/validate",
		Outcome:     reportOutcome(report),
		Decision:    model.Decision{Result: model.Allow},
	}
	if err := receipt.Seal(r); err != nil {
		return nil, err
	}
	if kp != nil {
		if err := receipt.Sign(r, *kp); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func reportOutcome(report *Report) string {
	if report.OverallPass {
		return "pass"
	}
	return "fail"
}

func addEvidence(evidence []string, id string) []string {
	if len(evidence) >= maxEvidence {
		return evidence
	}
	return append(evidence, id)
}

func finish(id, name string, violations int, evidence []string, subject string) CheckResult {
	c := CheckResult{CheckID: id, Name: name, Passed: violations == 0, Evidence: evidence}
	if violations == 0 {
		c.Details = fmt.Sprintf("all %s conform", subject)
	} else {
		c.Details = fmt.Sprintf("%d violating %s", violations, subject)
	}
	return c
}

// RCPT-01: every stored receipt_hash matches a recompute over the body.
func checkHashIntegrity(receipts []model.Receipt, chain []receipt.VerificationResult) CheckResult {
	var evidence []string
	violations := 0
	for i, res := range chain {
		if !res.HashValid {
			violations++
			evidence = addEvidence(evidence, receipts[i].ReceiptID)
		}
	}
	return finish("RCPT-01", "receipt hash integrity", violations, evidence, "receipts")
}

// RCPT-02: parent references resolve backward to valid hashes.
func checkChainIntegrity(receipts []model.Receipt, chain []receipt.VerificationResult) CheckResult {
	var evidence []string
	violations := 0
	for i, res := range chain {
		if !res.ChainValid {
			violations++
			evidence = addEvidence(evidence, receipts[i].ReceiptID)
		}
	}
	return finish("RCPT-02", "chain integrity", violations, evidence, "parent links")
}

// CRIT-01: no CRITICAL-classified command reached a success outcome
// without an intervening refusal earlier in its trace.
func checkCriticalBlocked(receipts []model.Receipt) CheckResult {
	refusalSeen := make(map[string]bool)
	var evidence []string
	violations := 0

	for _, r := range receipts {
		if r.IsRefusal() {
			refusalSeen[r.TraceID] = true
			continue
		}
		if r.RiskLevel == model.RiskCritical && r.Outcome == "success" && !refusalSeen[r.TraceID] {
			violations++
			evidence = addEvidence(evidence, r.ReceiptID)
		}
	}
	return finish("CRIT-01", "critical commands blocked", violations, evidence, "critical successes")
}

// REF-01: every decision carrying a deny reason code has a refusal-typed
// receipt within its trace.
func checkRefusalCoverage(receipts []model.Receipt) CheckResult {
	refusalTraces := make(map[string]bool)
	for _, r := range receipts {
		if r.ReceiptType == model.TypeRefusal {
			refusalTraces[r.TraceID] = true
		}
	}

	var evidence []string
	violations := 0
	for _, r := range receipts {
		if r.Decision.HasDenyReason() && !refusalTraces[r.TraceID] {
			violations++
			evidence = addEvidence(evidence, r.ReceiptID)
		}
	}
	return finish("REF-01", "deny reasons have refusal receipts", violations, evidence, "denials")
}

// PLAN-01: every HIGH/CRITICAL action that reached success is causally
// reachable from a plan-typed receipt via parent_hashes or plan_id.
func checkPlanBinding(receipts []model.Receipt) CheckResult {
	planHashes := make(map[string]bool)
	planIDs := make(map[string]bool)
	planReachable := make(map[string]bool) // receipt hashes reachable from a plan
	for _, r := range receipts {
		if r.ReceiptType == model.TypePlan {
			if r.ReceiptHash != "" {
				planHashes[r.ReceiptHash] = true
				planReachable[r.ReceiptHash] = true
			}
			if r.PlanID != "" {
				planIDs[r.PlanID] = true
			}
		}
	}

	var evidence []string
	violations := 0
	for _, r := range receipts {
		// Propagate reachability along parent links in log order.
		reachable := false
		for _, p := range r.ParentHashes {
			if planReachable[p] {
				reachable = true
				break
			}
		}
		if reachable && r.ReceiptHash != "" {
			planReachable[r.ReceiptHash] = true
		}

		highRisk := r.RiskLevel == model.RiskHigh || r.RiskLevel == model.RiskCritical
		if !highRisk || r.Outcome != "success" {
			continue
		}
		if reachable || (r.PlanID != "" && planIDs[r.PlanID]) {
			continue
		}
		violations++
		evidence = addEvidence(evidence, r.ReceiptID)
	}
	return finish("PLAN-01", "high-risk success bound to a plan", violations, evidence, "actions")
}

// SIG-01: every receipt declaring proof_tier court carries a signature,
// and any checked signature verifies.
func checkSignatureCoverage(receipts []model.Receipt, publicKeys map[string]ed25519.PublicKey, chain []receipt.VerificationResult) CheckResult {
	var evidence []string
	violations := 0
	for i, r := range receipts {
		if r.ProofTier == model.TierCourt && r.Signature == nil {
			violations++
			evidence = addEvidence(evidence, r.ReceiptID)
			continue
		}
		if chain[i].SignatureChecked && !chain[i].SignatureValid {
			violations++
			evidence = addEvidence(evidence, r.ReceiptID)
		}
	}
	return finish("SIG-01", "court-tier receipts signed", violations, evidence, "receipts")
}

// ORD-01: timestamps are non-decreasing across the log. Receipts from
// other producers may carry RFC 3339 offsets, so timestamps are compared
// as instants; string comparison is the fallback for unparseable pairs.
func checkOrdering(receipts []model.Receipt) CheckResult {
	var evidence []string
	violations := 0
	prev := ""
	for _, r := range receipts {
		if prev != "" && timestampBefore(r.Timestamp, prev) {
			violations++
			evidence = addEvidence(evidence, r.ReceiptID)
		}
		prev = r.Timestamp
	}
	return finish("ORD-01", "timestamps non-decreasing", violations, evidence, "receipts")
}

func timestampBefore(a, b string) bool {
	ta, errA := parseTimestamp(a)
	tb, errB := parseTimestamp(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}

func parseTimestamp(ts string) (time.Time, error) {
	if t, err := time.Parse(model.TimestampFormat, ts); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, ts)
}
