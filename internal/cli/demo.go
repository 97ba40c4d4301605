package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/authn"
	"github.com/Haserjian/csp-tool-safety-profile/internal/gateway"
	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an end-to-end gateway demonstration",
	Long: "Stands up an in-process gateway, pushes a scripted agent session\n" +
		"through it (unauthorized tool, oversized payload, path escape, clean\n" +
		"call), then verifies the resulting receipt chain.\n\n" +
		"Exit code 0 only when every denial lands and the chain verifies.",
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	fmt.Println("=== cspgate demo ===")
	fmt.Println("Purpose: prove denials are enforced and every decision is receipted.")
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "cspgate-demo-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	workspace := filepath.Join(tmpDir, "workspace")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(tmpDir, "receipts.jsonl")

	cfg := gateway.DefaultConfig()
	cfg.Workspace = workspace
	cfg.MaxPayloadBytes = 10_000
	cfg.ReceiptLog = logPath
	cfg.ApprovalDir = filepath.Join(tmpDir, "pending")
	cfg.Tokens = map[string]authn.Claims{
		"demo-token": {Subject: "demo-agent", ActorType: model.ActorAgent},
	}
	cfg.Trust = map[string]string{"srv-demo": "verified"}
	cfg.Tools = []gateway.ToolConfig{
		{ServerID: "srv-demo", Name: "fs_read", FileTool: true},
		{ServerID: "srv-demo", Name: "fs_write", FileTool: true},
	}
	cfg.Grants = []gateway.GrantConfig{
		{Subject: "demo-agent", Tools: []string{"fs_read", "fs_write"}, MaxRisk: "HIGH"},
	}
	cfg.Vault = map[string]string{"srv-demo": "vault-demo-credential"}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	gw, err := gateway.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	trace := "demo-trace"
	calls := []struct {
		label     string
		tool      string
		arguments map[string]any
		want      model.DecisionResult
	}{
		{
			label:     "call an ungranted tool",
			tool:      "shell_exec",
			arguments: map[string]any{"command": "whoami"},
			want:      model.Deny,
		},
		{
			label:     "oversized payload",
			tool:      "fs_write",
			arguments: map[string]any{"path": "big.txt", "content": strings.Repeat("x", 20_000)},
			want:      model.Deny,
		},
		{
			label:     "path escape attempt",
			tool:      "fs_read",
			arguments: map[string]any{"path": "../../../etc/passwd"},
			want:      model.Deny,
		},
		{
			label:     "clean read inside the workspace",
			tool:      "fs_read",
			arguments: map[string]any{"path": "notes.txt"},
			want:      model.Allow,
		},
	}

	allMatched := true
	for _, c := range calls {
		decision, _, err := gw.HandleToolsCall("demo-token", "srv-demo", c.tool, c.arguments, trace)
		if err != nil {
			return fmt.Errorf("%s: %w", c.label, err)
		}
		icon := "✓"
		if decision.Result != c.want {
			icon = "✗"
			allMatched = false
		}
		fmt.Printf("  %s %-35s → %s %v\n", icon, c.label, decision.Result, decision.ReasonCodes)
	}
	fmt.Println()

	receipts, err := receipt.ReadLog(logPath, trace)
	if err != nil {
		return fmt.Errorf("failed to read receipt log: %w", err)
	}
	results := receipt.VerifyChain(receipts, nil)
	invalid := 0
	for _, res := range results {
		if !res.Valid() {
			invalid++
		}
	}
	fmt.Printf("Receipt chain: %d receipts, %d invalid\n", len(results), invalid)
	fmt.Println()

	if !allMatched || invalid > 0 || len(receipts) != len(calls) {
		fmt.Println("FAIL: enforcement or receipt chain broken.")
		os.Exit(1)
	}
	fmt.Println("PASS: all denials enforced, chain verified.")
	return nil
}
