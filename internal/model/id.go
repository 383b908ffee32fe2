package model

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// NewID mints a fresh random identifier, used where uniqueness matters
// and reproducibility does not (a run id, for instance).
func NewID() string {
	return uuid.NewString()
}

// ShortID derives a short, stable fingerprint from id, used for compact
// provenance labels and log lines. Unlike NewID it is deterministic:
// the same input always fingerprints the same way.
func ShortID(id string) string {
	h := blake3.Sum256([]byte(id))
	return hex.EncodeToString(h[:])[:8]
}
