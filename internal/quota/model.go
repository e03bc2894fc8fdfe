package quota

import (
	"time"

	"github.com/google/uuid"
)

// Ledger matches the usage_ledgers table schema: per-user tier-based
// consumption, tracked independently of organization membership.
//
// LimitTokens and LimitMessages are a snapshot of the tier's limits taken
// when the ledger was created. They are deliberately not re-read from the
// limit table afterwards, so a tier-table change never moves an existing
// user's ceiling until their ledger is recreated.
type Ledger struct {
	UserID        uuid.UUID `json:"user_id"`
	Tier          string    `json:"tier"`
	TokenUsage    int64     `json:"token_usage_monthly"`
	MessageCount  int64     `json:"message_count_monthly"`
	LimitTokens   int64     `json:"limit_tokens"`
	LimitMessages int64     `json:"limit_messages"`
	LastReset     time.Time `json:"last_reset"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Usage regimes.
const (
	RegimeOrganization = "organization"
	RegimeTier         = "tier"
)

// UsageStatus is the API response showing current consumption and limits.
type UsageStatus struct {
	Regime        string     `json:"regime"`
	Tier          string     `json:"tier"`
	TokensUsed    int64      `json:"tokens_used"`
	TokensLimit   int64      `json:"tokens_limit"` // -1 = unlimited
	MessagesUsed  int64      `json:"messages_used"`
	MessagesLimit int64      `json:"messages_limit"`
	OrgUsed       *int64     `json:"org_used,omitempty"`
	OrgLimit      *int64     `json:"org_limit,omitempty"`
	LastReset     *time.Time `json:"last_reset,omitempty"`
}
