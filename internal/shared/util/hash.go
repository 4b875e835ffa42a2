package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashOwnerKey returns a filesystem-safe identifier for a document owner (email or "admin").
func HashOwnerKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TextHash returns the hex sha-256 of extracted document text, used to detect
// duplicate uploads.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashReader consumes r and returns the hex sha-256 of its contents.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
