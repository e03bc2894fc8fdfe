package quota

import (
	"github.com/minara-ai/minara/internal/config"
)

// Unlimited marks a token budget with no ceiling. 0 stays a valid, enforced
// zero budget — the two must never be conflated.
const Unlimited int64 = -1

// DefaultTier is the fallback for users with an unset or unrecognized tier.
const DefaultTier = "free"

// LimitTable is the read-only tier → limits mapping. It is built once at
// startup from config and handed to the Enforcer by reference; it is never
// re-read from global state mid-call.
type LimitTable struct {
	tiers map[string]config.TierLimits
}

// NewLimitTable copies the given tier map into an immutable table. The
// "free" entry must exist (enforced by config validation).
func NewLimitTable(tiers map[string]config.TierLimits) *LimitTable {
	copied := make(map[string]config.TierLimits, len(tiers))
	for name, l := range tiers {
		copied[name] = l
	}
	return &LimitTable{tiers: copied}
}

// Lookup returns the limits for a tier, falling back to the free tier for
// unknown or empty names. The returned tier name is the one actually used.
func (t *LimitTable) Lookup(tier string) (string, config.TierLimits) {
	if limits, ok := t.tiers[tier]; ok {
		return tier, limits
	}
	return DefaultTier, t.tiers[DefaultTier]
}
