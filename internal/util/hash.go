package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex fingerprints extracted book text.
func SHA256Hex(s string) string {
	x := sha256.Sum256([]byte(s))
	return hex.EncodeToString(x[:])
}
