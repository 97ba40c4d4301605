package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Haserjian/csp-tool-safety-profile/internal/approval"
)

var (
	approveDir      string
	approveDuration time.Duration
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVar(&approveDir, "dir", approval.DefaultDir(), "Approval store directory")
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 5m, 1h). Default: one-time use")

	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVar(&approveDir, "dir", approval.DefaultDir(), "Approval store directory")

	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVar(&approveDir, "dir", approval.DefaultDir(), "Approval store directory")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Grant approval for an escalated request",
	Long: "Approves a pending escalation. The key is <subject>.<tool>.\n" +
		"Without --duration, approval is one-time: the first call that passes\n" +
		"every gateway check spends it. With --duration, approval is valid\n" +
		"for the period and can be reused.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := approval.NewStore(approveDir)
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}
	if err := store.Approve(key, approveDuration); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveDuration)
	} else {
		fmt.Printf("Approved %q (one-time use)\n", key)
	}
	return nil
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Deny an escalated request",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	store, err := approval.NewStore(approveDir)
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}
	if err := store.Deny(args[0]); err != nil {
		return err
	}
	fmt.Printf("Denied %q\n", args[0])
	return nil
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List approval requests",
	Long:  "Shows all approval requests in the store with their status, risk, and timestamps.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := approval.NewStore(approveDir)
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-30s %-10s %-10s %s\n", "KEY", "STATUS", "RISK", "CREATED")
	for _, a := range list {
		fmt.Printf("%-30s %-10s %-10s %s\n",
			a.Key,
			a.Status,
			a.RiskLevel,
			a.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}
