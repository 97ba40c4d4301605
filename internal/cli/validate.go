package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Haserjian/csp-tool-safety-profile/internal/conformance"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

var (
	validateKeys    []string
	validateSignKey string
	validateOutput  string
	validateVerbose bool
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSliceVarP(&validateKeys, "key", "k", nil, "Public key file for signature checks (repeatable)")
	validateCmd.Flags().StringVar(&validateSignKey, "sign", "", "Private key file; sign the report receipt with it")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "", "Write the report receipt here")
	validateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "Print evidence receipt IDs per check")
}

var validateCmd = &cobra.Command{
	Use:   "validate <log>",
	Short: "Run the conformance battery over a receipt log",
	Long: "Replays a receipt log offline and checks hash integrity, chain\n" +
		"integrity, refusal coverage, plan binding for high-risk actions,\n" +
		"signature coverage, and timestamp ordering.\n\n" +
		"Exit code 0 when every check passes, 1 otherwise.",
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	receipts, err := conformance.LoadReceipts(args[0])
	if err != nil {
		return err
	}
	keys, err := loadPublicKeys(validateKeys)
	if err != nil {
		return err
	}

	report := conformance.Validate(receipts, keys)

	for _, c := range report.Checks {
		mark := "PASS"
		if !c.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  %s %s  %s — %s\n", mark, c.CheckID, c.Name, c.Details)
		if validateVerbose {
			for _, id := range c.Evidence {
				fmt.Printf("         %s\n", id)
			}
		}
	}
	if report.FailureReason != "" {
		fmt.Printf("  %s\n", report.FailureReason)
	}

	if validateOutput != "" || validateSignKey != "" {
		var kp *receipt.KeyPair
		if validateSignKey != "" {
			loaded, err := receipt.LoadPrivateKey(validateSignKey)
			if err != nil {
				return err
			}
			kp = &loaded
		}
		rr, err := conformance.ReportReceipt(report, kp)
		if err != nil {
			return err
		}
		if err := writeReceipt(rr, validateOutput); err != nil {
			return err
		}
	}

	if report.OverallPass {
		fmt.Printf("PASS: %d receipts conform\n", report.ReceiptCount)
		return nil
	}
	fmt.Println("FAIL: log does not conform")
	os.Exit(1)
	return nil
}
