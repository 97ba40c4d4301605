package receipt

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/Haserjian/csp-tool-safety-profile/internal/model"
)

// VerifySignature checks the stored signature against the stored hash
// string using pub. Nothing is recomputed. Any missing or malformed input
// yields false; errors never propagate.
func VerifySignature(r *model.Receipt, pub ed25519.PublicKey) bool {
	if r == nil || r.Signature == nil || r.ReceiptHash == "" {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(r.ReceiptHash), sig)
}

// VerificationResult is the per-receipt outcome of a chain pass.
type VerificationResult struct {
	Index            int      `json:"index"`
	ReceiptID        string   `json:"receipt_id"`
	HashValid        bool     `json:"hash_valid"`
	ChainValid       bool     `json:"chain_valid"`
	SignatureChecked bool     `json:"signature_checked"`
	SignatureValid   bool     `json:"signature_valid"`
	Errors           []string `json:"errors,omitempty"`
}

// Valid reports whether every performed check passed.
func (v VerificationResult) Valid() bool {
	if !v.HashValid || !v.ChainValid {
		return false
	}
	return !v.SignatureChecked || v.SignatureValid
}

// VerifyChain walks receipts in the given order. Hash mismatch is fatal
// for that receipt. Parent hashes must already have appeared, as valid
// hashes, earlier in the same pass: a forward reference is a chain
// violation. If a receipt is signed and publicKeys holds its key_id, the
// signature is verified. A later receipt never invalidates an earlier
// one; invalidity moves forward only through explicit parent references.
func VerifyChain(receipts []model.Receipt, publicKeys map[string]ed25519.PublicKey) []VerificationResult {
	results := make([]VerificationResult, 0, len(receipts))
	validHashes := make(map[string]bool)

	for i := range receipts {
		r := &receipts[i]
		res := VerificationResult{Index: i, ReceiptID: r.ReceiptID, HashValid: true, ChainValid: true}

		recomputed, err := HashReceipt(r)
		if err != nil {
			res.HashValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("hash recompute: %v", err))
		} else if recomputed != r.ReceiptHash {
			res.HashValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("hash mismatch: stored %s, recomputed %s", r.ReceiptHash, recomputed))
		}

		for _, parent := range r.ParentHashes {
			if !validHashes[parent] {
				res.ChainValid = false
				res.Errors = append(res.Errors, fmt.Sprintf("parent %s not seen as a valid hash earlier in the log", parent))
			}
		}

		if r.Signature != nil {
			if pub, ok := publicKeys[r.Signature.KeyID]; ok {
				res.SignatureChecked = true
				res.SignatureValid = VerifySignature(r, pub)
				if !res.SignatureValid {
					res.Errors = append(res.Errors, fmt.Sprintf("signature by key %s does not verify", r.Signature.KeyID))
				}
			}
		}

		if res.Valid() && r.ReceiptHash != "" {
			validHashes[r.ReceiptHash] = true
		}
		results = append(results, res)
	}
	return results
}
