package receipt

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// HashReceipt computes a receipt's content hash with the receipt_hash and
// signature fields excluded.
func HashReceipt(r *model.Receipt) (string, error) {
	return Hash(r, "receipt_hash", "signature")
}

// Seal computes and stores the receipt's hash.
func Seal(r *model.Receipt) error {
	h, err := HashReceipt(r)
	if err != nil {
		return err
	}
	r.ReceiptHash = h
	return nil
}

// Sign attaches an Ed25519 signature over the UTF-8 bytes of the stored
// hash string. The hash must already be present.
func Sign(r *model.Receipt, kp KeyPair) error {
	if r.ReceiptHash == "" {
		return fmt.Errorf("receipt: cannot sign without receipt_hash")
	}
	if len(kp.Private) != ed25519.PrivateKeySize {
		return fmt.Errorf("receipt: key pair %q has no private key", kp.KeyID)
	}
	sig := ed25519.Sign(kp.Private, []byte(r.ReceiptHash))
	r.Signature = &model.Signature{
		Algorithm: "Ed25519",
		KeyID:     kp.KeyID,
		Sig:       base64.StdEncoding.EncodeToString(sig),
	}
	return nil
}
