package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamTasks  = "MINARA_TASKS"
	StreamEvents = "MINARA_EVENTS"
)

// Subject constants.
const (
	SubjectChatTask   = "minara.tasks.chat"
	SubjectQuotaAlert = "minara.events.quota"
	SubjectUsage      = "minara.events.usage"
)

// Quota alert scopes.
const (
	AlertScopeUser         = "user"
	AlertScopeOrganization = "organization"
	AlertScopeMessages     = "messages"
)

// ChatTask is published for downstream assistant workers after a chat turn
// clears quota enforcement.
type ChatTask struct {
	RequestID      string    `json:"request_id"`
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Message        string    `json:"message"`
	EstimatedUnits int64     `json:"estimated_units"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// QuotaAlertEvent is published when a usage counter crosses the warning
// threshold. Delivery (email, Slack) happens in the notify consumer.
type QuotaAlertEvent struct {
	Scope          string     `json:"scope"` // user, organization, messages
	UserID         uuid.UUID  `json:"user_id"`
	UserEmail      string     `json:"user_email,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	OrgName        string     `json:"org_name,omitempty"`
	Used           int64      `json:"used"`
	Limit          int64      `json:"limit"`
	Timestamp      time.Time  `json:"timestamp"`
}

// PercentUsed returns used/limit as a 0–100 percentage, 0 when the limit
// is unset or unlimited.
func (e QuotaAlertEvent) PercentUsed() float64 {
	if e.Limit <= 0 {
		return 0
	}
	return float64(e.Used) / float64(e.Limit) * 100
}

// UsageEvent is published after every successful enforcement commit, for
// downstream analytics.
type UsageEvent struct {
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Units          int64      `json:"units"`
	OrgManaged     bool       `json:"org_managed"`
	Timestamp      time.Time  `json:"timestamp"`
}
