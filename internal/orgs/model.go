package orgs

import (
	"time"

	"github.com/google/uuid"
)

// Organization matches the organizations table schema. UsageTotalLimit is
// the hard ceiling on the sum of all member consumption for the period.
type Organization struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	HeadUserID      uuid.UUID  `json:"head_user_id"`
	UsageTotalLimit int64      `json:"usage_total_limit"`
	UsageUsed       int64      `json:"usage_used"`
	UsageResetAt    *time.Time `json:"usage_reset_at,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Quota request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestDenied   = "denied"
)

// QuotaRequest is a member's request for a larger monthly budget, resolved
// by the organization head.
type QuotaRequest struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	UserEmail      string     `json:"user_email,omitempty"`
	RequestedLimit int64      `json:"requested_limit"`
	Reason         string     `json:"reason,omitempty"`
	Status         string     `json:"status"`
	ResolvedBy     *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
