package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// KeyPair is an Ed25519 signing key with its identifier. The private key
// stays with the signer and must never appear in logs or receipts.
type KeyPair struct {
	KeyID   string
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair. An empty keyID gets a
// generated "ed25519-" identifier.
func GenerateKeyPair(keyID string) (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("receipt: generate key pair: %w", err)
	}
	if keyID == "" {
		keyID = "ed25519-" + uuid.NewString()[:8]
	}
	return KeyPair{KeyID: keyID, Private: priv, Public: pub}, nil
}

type privateKeyFile struct {
	KeyID      string `json:"key_id"`
	Algorithm  string `json:"algorithm"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

type publicKeyFile struct {
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
}

// SavePrivateKey writes the full key pair to path, owner-readable only.
func SavePrivateKey(path string, kp KeyPair) error {
	data, err := json.MarshalIndent(privateKeyFile{
		KeyID:      kp.KeyID,
		Algorithm:  "Ed25519",
		PrivateKey: base64.StdEncoding.EncodeToString(kp.Private.Seed()),
		PublicKey:  base64.StdEncoding.EncodeToString(kp.Public),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("receipt: encode private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("receipt: write private key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a key pair written by SavePrivateKey.
func LoadPrivateKey(path string) (KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("receipt: read private key: %w", err)
	}
	var f privateKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return KeyPair{}, fmt.Errorf("receipt: parse private key file: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(f.PrivateKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("receipt: decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("receipt: private key has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{
		KeyID:   f.KeyID,
		Private: priv,
		Public:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// SavePublicKey writes only the public half, for distribution to verifiers.
func SavePublicKey(path string, kp KeyPair) error {
	data, err := json.MarshalIndent(publicKeyFile{
		KeyID:     kp.KeyID,
		Algorithm: "Ed25519",
		PublicKey: base64.StdEncoding.EncodeToString(kp.Public),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("receipt: encode public key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("receipt: write public key: %w", err)
	}
	return nil
}

// LoadPublicKey reads a public key file written by SavePublicKey or
// SavePrivateKey.
func LoadPublicKey(path string) (string, ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("receipt: read public key: %w", err)
	}
	var f publicKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("receipt: parse public key file: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(f.PublicKey)
	if err != nil {
		return "", nil, fmt.Errorf("receipt: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", nil, fmt.Errorf("receipt: public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return f.KeyID, ed25519.PublicKey(raw), nil
}
