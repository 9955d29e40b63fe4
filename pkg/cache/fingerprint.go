package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/vidpulse/vidpulse/pkg/model"
)

// Fingerprint builds the canonical cache key for a query. Every parameter
// that affects result identity gets its own tagged segment, so two
// logically different queries can never collide the way positionally
// concatenated keys can. op namespaces the producing pipeline: a radar
// scan seeded with "@foo" and a free-text search for "@foo" share every
// query dimension yet produce differently shaped payloads. The channel ID
// *set* is order-insensitive and reduced to a short collision-resistant
// hash.
func Fingerprint(op string, p model.SearchParams) string {
	return fmt.Sprintf("op=%s|r=%s|q=%s|c=%s|w=%d|n=%d|ch=%s|s=%s",
		op,
		p.Region,
		strings.ToLower(strings.TrimSpace(p.Query)),
		p.CategoryID,
		p.LookbackHours,
		p.MaxResults,
		channelSetHash(p.ChannelIDs),
		p.Strategy,
	)
}

func channelSetHash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("%x", sum[:8])
}
