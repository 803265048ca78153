package royalty

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewRunID generates a random run identifier.
func NewRunID() string {
	return "run-" + randomHex(8)
}

// NewLineID generates a random line identifier.
func NewLineID() string {
	return "line-" + randomHex(8)
}

// BuildStatementID derives a stable statement identifier from the (run,
// creator) pair, which is unique per run.
func BuildStatementID(runID, creatorID string) string {
	sum := sha256.Sum256([]byte(runID + "|" + creatorID))
	return "stmt-" + hex.EncodeToString(sum[:8])
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
