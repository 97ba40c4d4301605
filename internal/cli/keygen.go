package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Haserjian/csp-tool-safety-profile/internal/receipt"
)

var (
	keygenID      string
	keygenPrivate string
	keygenPublic  string
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenID, "key-id", "", "Key identifier (generated when empty)")
	keygenCmd.Flags().StringVar(&keygenPrivate, "private", "signing.key", "Private key output path")
	keygenCmd.Flags().StringVar(&keygenPublic, "public", "signing.pub", "Public key output path")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 signing key pair",
	Long: "Generates a fresh Ed25519 key pair for court-tier receipt signing.\n" +
		"The private key file is written mode 0600 and must never leave the host.",
	RunE: runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := receipt.GenerateKeyPair(keygenID)
	if err != nil {
		return err
	}
	if err := receipt.SavePrivateKey(keygenPrivate, kp); err != nil {
		return err
	}
	if err := receipt.SavePublicKey(keygenPublic, kp); err != nil {
		return err
	}
	fmt.Printf("key_id:  %s\nprivate: %s\npublic:  %s\n", kp.KeyID, keygenPrivate, keygenPublic)
	return nil
}
