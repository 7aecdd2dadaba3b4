package lock

import (
	"crypto/rand"
	"encoding/hex"
)

// newNonce returns a 16-byte random opaque lock_id.
func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
