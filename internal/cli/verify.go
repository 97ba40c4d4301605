package cli

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Haserjian/csp-tool-safety-profile/internal/conformance"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

var (
	verifyKeys    []string
	verifyVerbose bool
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringSliceVarP(&verifyKeys, "key", "k", nil, "Public key file (repeatable)")
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Print every receipt, not just violations")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <log>",
	Short: "Verify hash and chain integrity of a receipt log",
	Long: "Recomputes every receipt hash, checks parent links resolve backward\n" +
		"to valid receipts, and verifies signatures for any supplied public keys.\n\n" +
		"Exit code 0 when the whole chain is valid, 1 otherwise.",
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func loadPublicKeys(paths []string) (map[string]ed25519.PublicKey, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	keys := make(map[string]ed25519.PublicKey, len(paths))
	for _, p := range paths {
		keyID, pub, err := receipt.LoadPublicKey(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		keys[keyID] = pub
	}
	return keys, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	receipts, err := conformance.LoadReceipts(args[0])
	if err != nil {
		return err
	}
	keys, err := loadPublicKeys(verifyKeys)
	if err != nil {
		return err
	}

	results := receipt.VerifyChain(receipts, keys)
	invalid := 0
	for _, res := range results {
		if res.Valid() {
			if verifyVerbose {
				fmt.Printf("  ok   %s\n", res.ReceiptID)
			}
			continue
		}
		invalid++
		fmt.Printf("  FAIL %s\n", res.ReceiptID)
		for _, e := range res.Errors {
			fmt.Printf("       %s\n", e)
		}
	}

	fmt.Printf("%d receipts, %d invalid\n", len(results), invalid)
	if invalid > 0 || len(results) == 0 {
		os.Exit(1)
	}
	return nil
}
