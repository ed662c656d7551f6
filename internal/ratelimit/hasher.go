package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"bizpulse/internal/constants"
)

// KeyFor builds the rate-limit key of a (listener, event type, fingerprint)
// tuple. Components are hashed so arbitrary fingerprints stay key-safe.
func KeyFor(listener, eventType, fingerprint string) string {
	var builder strings.Builder
	for _, part := range []string{listener, eventType, fingerprint} {
		builder.WriteString(part)
		builder.WriteString("|")
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return constants.CacheKeyPrefixRateLimit + hex.EncodeToString(sum[:])
}
