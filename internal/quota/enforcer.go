package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/minara-ai/minara/internal/config"
	"github.com/minara-ai/minara/internal/metrics"
	inats "github.com/minara-ai/minara/internal/nats"
	"github.com/minara-ai/minara/internal/orgs"
	"github.com/minara-ai/minara/internal/users"
)

// UserStore is the slice of the users repository the enforcer needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	IncrementQuotaUsed(ctx context.Context, id uuid.UUID, delta int64) error
}

// OrgStore is the slice of the organizations repository the enforcer needs.
type OrgStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*orgs.Organization, error)
	IncrementUsage(ctx context.Context, id uuid.UUID, delta int64) error
}

// LedgerStore persists tier-based usage ledgers.
type LedgerStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, tier string, limits config.TierLimits) (*Ledger, error)
	IncrementTokens(ctx context.Context, userID uuid.UUID, units int64) error
	IncrementMessages(ctx context.Context, userID uuid.UUID, count int64) error
}

// AlertSink receives threshold-crossing alerts and usage accounting events.
// Delivery is fire-and-forget; the enforcer never fails a call over a sink
// error.
type AlertSink interface {
	PublishQuotaAlert(ctx context.Context, event inats.QuotaAlertEvent) error
	PublishUsage(ctx context.Context, event inats.UsageEvent) error
}

// Enforcer is the single choke point through which all usage accounting
// flows. Every billable operation calls EnforceAndRecord before proceeding.
type Enforcer struct {
	users         UserStore
	orgs          OrgStore
	ledgers       LedgerStore
	limits        *LimitTable
	alerts        AlertSink
	warnThreshold float64
}

// NewEnforcer wires an Enforcer. alerts may be nil, in which case threshold
// crossings are only logged.
func NewEnforcer(userStore UserStore, orgStore OrgStore, ledgers LedgerStore, limits *LimitTable, alerts AlertSink, warnThreshold float64) *Enforcer {
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	return &Enforcer{
		users:         userStore,
		orgs:          orgStore,
		ledgers:       ledgers,
		limits:        limits,
		alerts:        alerts,
		warnThreshold: warnThreshold,
	}
}

// EnforceAndRecord authorizes the consumption of units by userID and
// records it. On success every relevant counter reflects the consumption;
// on any error no counter was mutated. Checks run outermost-in: the
// organization ceiling first, then the user token budget (organization
// override or tier ledger), then the tier message cap.
//
// The checks read counters without holding a lock across the later
// increments, so two concurrent calls can both pass against a stale value;
// the limit is soft under concurrent load. Store errors fail closed.
func (e *Enforcer) EnforceAndRecord(ctx context.Context, userID uuid.UUID, units int64, emitWarnings bool) error {
	if units < 0 {
		slog.Error("quota: negative units requested", "user_id", userID, "units", units)
		metrics.QuotaChecksTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: got %d", ErrNegativeUnits, units)
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user %s: %w", userID, err)
	}
	if user == nil {
		// An authenticated caller without a backing record is a
		// data-integrity bug, not a quota denial.
		slog.Error("quota: user record missing during enforcement", "user_id", userID)
		metrics.QuotaChecksTotal.WithLabelValues("inconsistent").Inc()
		return fmt.Errorf("user %s: %w", userID, ErrAccountInconsistent)
	}

	// Organization gate. The org ceiling is the outermost boundary and is
	// checked for every member before any user-level check.
	var org *orgs.Organization
	if user.OrganizationID != nil {
		org, err = e.orgs.GetByID(ctx, *user.OrganizationID)
		if err != nil {
			return fmt.Errorf("loading organization %s: %w", *user.OrganizationID, err)
		}
		if org == nil {
			slog.Error("quota: organization record missing", "org_id", *user.OrganizationID, "user_id", userID)
			metrics.QuotaChecksTotal.WithLabelValues("inconsistent").Inc()
			return fmt.Errorf("organization %s: %w", *user.OrganizationID, ErrAccountInconsistent)
		}
		if org.UsageUsed+units > org.UsageTotalLimit {
			slog.Warn("quota: organization limit reached",
				"org_id", org.ID, "user_id", userID,
				"used", org.UsageUsed, "limit", org.UsageTotalLimit, "requested", units)
			metrics.QuotaDenialsTotal.WithLabelValues("organization").Inc()
			metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
			return fmt.Errorf("organization %s at %d/%d units: %w",
				org.ID, org.UsageUsed, org.UsageTotalLimit, ErrOrgQuotaExceeded)
		}
	}

	// Determine the regime. Re-evaluated on every call, never cached.
	orgManaged := user.OrgManaged()
	var (
		effectiveLimit int64
		effectiveUsed  int64
		ledger         *Ledger
	)
	if orgManaged {
		effectiveLimit = *user.QuotaMonthlyLimit
		effectiveUsed = user.QuotaUsed
		slog.Debug("quota: organization-managed regime",
			"user_id", userID, "limit", effectiveLimit, "used", effectiveUsed)
	} else {
		tier, limits := e.limits.Lookup(user.Tier)
		ledger, err = e.ledgers.GetOrCreate(ctx, user.ID, tier, limits)
		if err != nil {
			return fmt.Errorf("loading usage ledger for %s: %w", userID, err)
		}
		effectiveLimit = ledger.LimitTokens
		effectiveUsed = ledger.TokenUsage
		slog.Debug("quota: tier-managed regime",
			"user_id", userID, "tier", tier, "limit", effectiveLimit, "used", effectiveUsed)
	}

	// Token budget check. Unlimited (-1) skips; 0 is an enforced zero budget.
	if effectiveLimit != Unlimited && effectiveUsed+units > effectiveLimit {
		slog.Warn("quota: user token limit exceeded",
			"user_id", userID, "used", effectiveUsed, "limit", effectiveLimit, "requested", units)
		metrics.QuotaDenialsTotal.WithLabelValues("user").Inc()
		metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
		return fmt.Errorf("user %s at %d/%d units: %w",
			userID, effectiveUsed, effectiveLimit, ErrQuotaExceeded)
	}

	// Message cap check, always against the tier ledger, even for
	// organization-managed users: token budget and message count are
	// independent axes.
	if ledger == nil {
		tier, limits := e.limits.Lookup(user.Tier)
		ledger, err = e.ledgers.GetOrCreate(ctx, user.ID, tier, limits)
		if err != nil {
			return fmt.Errorf("loading usage ledger for %s: %w", userID, err)
		}
	}
	if ledger.LimitMessages > 0 && ledger.MessageCount+1 > ledger.LimitMessages {
		slog.Warn("quota: user message limit exceeded",
			"user_id", userID, "sent", ledger.MessageCount, "limit", ledger.LimitMessages)
		metrics.QuotaDenialsTotal.WithLabelValues("messages").Inc()
		metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
		return fmt.Errorf("user %s at %d/%d messages: %w",
			userID, ledger.MessageCount, ledger.LimitMessages, ErrMessageLimitExceeded)
	}

	// Commit. Any write error from here fails the call; the caller must not
	// proceed with the billable action on an unrecorded authorization.
	if orgManaged {
		if err := e.users.IncrementQuotaUsed(ctx, user.ID, units); err != nil {
			return fmt.Errorf("recording user usage: %w", err)
		}
		if err := e.orgs.IncrementUsage(ctx, org.ID, units); err != nil {
			return fmt.Errorf("recording organization usage: %w", err)
		}
	} else {
		if err := e.ledgers.IncrementTokens(ctx, user.ID, units); err != nil {
			return fmt.Errorf("recording ledger usage: %w", err)
		}
	}
	if err := e.ledgers.IncrementMessages(ctx, user.ID, 1); err != nil {
		return fmt.Errorf("recording message count: %w", err)
	}

	metrics.QuotaChecksTotal.WithLabelValues("allowed").Inc()
	metrics.QuotaUnitsConsumed.Add(float64(units))

	if e.alerts != nil {
		usage := inats.UsageEvent{
			UserID:         user.ID,
			OrganizationID: user.OrganizationID,
			Units:          units,
			OrgManaged:     orgManaged,
			Timestamp:      time.Now().UTC(),
		}
		if err := e.alerts.PublishUsage(ctx, usage); err != nil {
			slog.Error("quota: publishing usage event", "error", err, "user_id", user.ID)
		}
	}

	if emitWarnings {
		e.emitThresholdAlerts(ctx, user, org, orgManaged, units, effectiveUsed+units, effectiveLimit, ledger)
	}

	return nil
}

// emitThresholdAlerts publishes a warning for every counter sitting past the
// threshold after this call. Alerts re-fire on each call past the threshold;
// there is no "already notified" state. Failures are logged and swallowed.
func (e *Enforcer) emitThresholdAlerts(ctx context.Context, user *users.User, org *orgs.Organization, orgManaged bool, units, tokensUsed, tokenLimit int64, ledger *Ledger) {
	now := time.Now().UTC()

	if tokenLimit > 0 && float64(tokensUsed) > e.warnThreshold*float64(tokenLimit) {
		e.publishAlert(ctx, inats.QuotaAlertEvent{
			Scope:          inats.AlertScopeUser,
			UserID:         user.ID,
			UserEmail:      user.Email,
			OrganizationID: user.OrganizationID,
			Used:           tokensUsed,
			Limit:          tokenLimit,
			Timestamp:      now,
		})
	}

	if ledger.LimitMessages > 0 && float64(ledger.MessageCount+1) > e.warnThreshold*float64(ledger.LimitMessages) {
		e.publishAlert(ctx, inats.QuotaAlertEvent{
			Scope:     inats.AlertScopeMessages,
			UserID:    user.ID,
			UserEmail: user.Email,
			Used:      ledger.MessageCount + 1,
			Limit:     ledger.LimitMessages,
			Timestamp: now,
		})
	}

	if orgManaged && org.UsageTotalLimit > 0 {
		used := org.UsageUsed + units
		if float64(used) > e.warnThreshold*float64(org.UsageTotalLimit) {
			e.publishAlert(ctx, inats.QuotaAlertEvent{
				Scope:          inats.AlertScopeOrganization,
				UserID:         user.ID,
				OrganizationID: &org.ID,
				OrgName:        org.Name,
				Used:           used,
				Limit:          org.UsageTotalLimit,
				Timestamp:      now,
			})
		}
	}
}

func (e *Enforcer) publishAlert(ctx context.Context, event inats.QuotaAlertEvent) {
	slog.Warn("quota: usage past warning threshold",
		"scope", event.Scope, "user_id", event.UserID,
		"used", event.Used, "limit", event.Limit)
	metrics.QuotaAlertsTotal.WithLabelValues(event.Scope).Inc()

	if e.alerts == nil {
		return
	}
	if err := e.alerts.PublishQuotaAlert(ctx, event); err != nil {
		slog.Error("quota: publishing threshold alert", "error", err, "scope", event.Scope)
	}
}
