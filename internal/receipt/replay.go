package receipt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// ReplayFilter holds filtering criteria for a trace replay.
type ReplayFilter struct {
	TraceID string
	From    time.Time // zero value = no lower bound
	To      time.Time // zero value = no upper bound
}

// ReplaySummary holds decision counts and metadata for a replayed trace.
type ReplaySummary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	ApprovalCount  int    `json:"approval_count"`
	SignedCount    int    `json:"signed_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	MaxRisk        string `json:"max_risk,omitempty"`
}

// ReplayResult holds filtered receipts and their summary.
type ReplayResult struct {
	TraceID  string          `json:"trace_id"`
	Receipts []model.Receipt `json:"receipts"`
	Summary  ReplaySummary   `json:"summary"`
}

// Replay reads a JSONL receipt log and returns receipts matching the
// filter, in log order. Malformed lines are skipped.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	all, err := ReadLog(path, "")
	if err != nil {
		return nil, err
	}
	return ReplayReceipts(all, filter), nil
}

// ReplayReceipts applies the filter to an already-loaded receipt slice.
func ReplayReceipts(receipts []model.Receipt, filter ReplayFilter) *ReplayResult {
	result := &ReplayResult{TraceID: filter.TraceID}

	for _, r := range receipts {
		if filter.TraceID != "" && r.TraceID != filter.TraceID {
			continue
		}
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(model.TimestampFormat, r.Timestamp)
			if err != nil {
				continue
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}
		result.Receipts = append(result.Receipts, r)
		updateSummary(&result.Summary, r)
	}
	return result
}

func updateSummary(s *ReplaySummary, r model.Receipt) {
	s.Total++

	switch r.Decision.Result {
	case model.Allow:
		s.AllowCount++
	case model.Deny:
		s.DenyCount++
	case model.RequireApproval:
		s.ApprovalCount++
	}

	if r.Signature != nil {
		s.SignedCount++
	}
	if r.RiskLevel != "" && model.RiskRank[r.RiskLevel] > model.RiskRank[model.RiskCategory(s.MaxRisk)] {
		s.MaxRisk = string(r.RiskLevel)
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = r.Timestamp
	}
	s.LastTimestamp = r.Timestamp
}

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Receipts) == 0 {
		return fmt.Sprintf("Trace: %s | No receipts found.\n", result.TraceID)
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("Trace: %s | %s–%s UTC\n",
		result.TraceID,
		formatTimeOnly(result.Summary.FirstTimestamp),
		formatTimeOnly(result.Summary.LastTimestamp)))
	b.WriteString(separator + "\n")

	for _, r := range result.Receipts {
		ts := formatTimeOnly(r.Timestamp)
		decision := strings.ToUpper(string(r.Decision.Result))
		tool := truncate(r.ToolName, 14)
		reasons := truncate(joinCodes(r.Decision.ReasonCodes), 36)

		tag := ""
		if r.Signature != nil {
			tag = "  [signed]"
		}

		b.WriteString(fmt.Sprintf("%-13s %-17s %-15s %-36s%s\n",
			ts, decision, tool, reasons, tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(fmt.Sprintf("%d receipts: %d allow, %d deny, %d require_approval, %d signed\n",
		result.Summary.Total,
		result.Summary.AllowCount,
		result.Summary.DenyCount,
		result.Summary.ApprovalCount,
		result.Summary.SignedCount))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func joinCodes(codes []model.ReasonCode) string {
	if len(codes) == 0 {
		return "-"
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(model.TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05.000")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
