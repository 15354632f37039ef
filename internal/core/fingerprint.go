package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the idempotency key of an input: the hex SHA-256 of its raw
// bytes. The file name plays no part.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// shortFingerprint is the prefix used in log lines.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
