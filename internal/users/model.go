package users

import (
	"time"

	"github.com/google/uuid"
)

// Roles. Organization heads manage member quotas for their org.
const (
	RoleUser    = "user"
	RoleOrgHead = "organization_head"
	RoleAdmin   = "admin"
)

// User matches the users table schema.
//
// QuotaMonthlyLimit is deliberately a pointer: nil means "no
// organization-assigned budget, fall back to the tier system", while an
// explicit 0 is a valid, enforced zero budget. Collapsing the two was a
// bug class in earlier iterations of this system.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	Role              string     `json:"role"`
	Tier              string     `json:"tier"`
	OrganizationID    *uuid.UUID `json:"organization_id,omitempty"`
	QuotaMonthlyLimit *int64     `json:"quota_monthly_limit,omitempty"`
	QuotaUsed         int64      `json:"quota_used"`
	QuotaResetAt      *time.Time `json:"quota_reset_at,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OrgManaged reports whether the user's token budget is overridden by an
// organization-assigned monthly limit. Requires both org membership and a
// present, non-negative override.
func (u *User) OrgManaged() bool {
	return u.OrganizationID != nil && u.QuotaMonthlyLimit != nil && *u.QuotaMonthlyLimit >= 0
}
