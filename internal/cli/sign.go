package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

var (
	hashPretty bool

	signKey    string
	signOutput string
)

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().BoolVar(&hashPretty, "pretty", false, "Print the sealed receipt instead of the bare hash")

	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVarP(&signKey, "key", "k", "", "Private key file (required)")
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "", "Write the signed receipt here instead of stdout")
	signCmd.MarkFlagRequired("key")
}

var hashCmd = &cobra.Command{
	Use:   "hash <receipt.json>",
	Short: "Canonicalize a receipt and print its hash",
	Long: "Computes the receipt hash over RFC 8785 canonical JSON with the\n" +
		"receipt_hash and signature fields excluded, and prints it.",
	Args: cobra.ExactArgs(1),
	RunE: runHash,
}

func runHash(cmd *cobra.Command, args []string) error {
	r, err := readReceiptFile(args[0])
	if err != nil {
		return err
	}
	if err := receipt.Seal(r); err != nil {
		return err
	}
	if hashPretty {
		return writeReceipt(r, "")
	}
	fmt.Println(r.ReceiptHash)
	return nil
}

var signCmd = &cobra.Command{
	Use:   "sign <receipt.json>",
	Short: "Seal and sign a receipt with an Ed25519 key",
	Args:  cobra.ExactArgs(1),
	RunE:  runSign,
}

func runSign(cmd *cobra.Command, args []string) error {
	kp, err := receipt.LoadPrivateKey(signKey)
	if err != nil {
		return err
	}
	r, err := readReceiptFile(args[0])
	if err != nil {
		return err
	}
	if err := receipt.Seal(r); err != nil {
		return err
	}
	if err := receipt.Sign(r, kp); err != nil {
		return err
	}
	return writeReceipt(r, signOutput)
}

func readReceiptFile(path string) (*model.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r model.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

func writeReceipt(r *model.Receipt, path string) error {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(out))
		return nil
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}
