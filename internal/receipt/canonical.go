// Package receipt implements the cryptographic core: canonical JSON,
// content hashing, Ed25519 signing, chain verification, and receipt
// emission with persistence.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// HashPrefix identifies the digest algorithm on receipt hashes.
const HashPrefix = "sha256:"

// Canonicalize serializes v as RFC 8785 canonical JSON: lexicographically
// sorted keys, no insignificant whitespace.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("receipt: marshal for canonicalization: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("receipt: canonicalize: %w", err)
	}
	return canon, nil
}

// Hash computes the content hash of v after removing the named top-level
// fields, returning "sha256:" plus 64 lowercase hex digits.
func Hash(v any, exclude ...string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("receipt: marshal for hashing: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("receipt: hash input is not an object: %w", err)
	}
	for _, field := range exclude {
		delete(body, field)
	}
	canon, err := Canonicalize(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}

// HashArgs is the content hash of a tool call's arguments.
func HashArgs(arguments map[string]any) (string, error) {
	canon, err := Canonicalize(arguments)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}
