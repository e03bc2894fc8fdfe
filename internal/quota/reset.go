package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// UserResetter zeroes stale per-user budgets.
type UserResetter interface {
	ResetStaleQuotas(ctx context.Context) (int64, error)
}

// OrgResetter zeroes stale organization aggregates.
type OrgResetter interface {
	ResetStaleUsage(ctx context.Context) (int64, error)
}

// LedgerResetter zeroes stale tier ledgers.
type LedgerResetter interface {
	ResetStale(ctx context.Context) (int64, error)
}

// ResetJob periodically zeroes monthly counters. The staleness guard lives
// in SQL (rows last reset before the current calendar month), so the job is
// idempotent: running it twice in one month resets nothing twice, and a
// restarted process picks up where the old one left off.
type ResetJob struct {
	users    UserResetter
	orgs     OrgResetter
	ledgers  LedgerResetter
	interval time.Duration
}

// NewResetJob creates a ResetJob that checks every interval.
func NewResetJob(users UserResetter, orgs OrgResetter, ledgers LedgerResetter, interval time.Duration) *ResetJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ResetJob{users: users, orgs: orgs, ledgers: ledgers, interval: interval}
}

// Start runs the reset loop until ctx is cancelled. One pass runs
// immediately on start.
func (j *ResetJob) Start(ctx context.Context) {
	slog.Info("quota reset job started", "check_interval", j.interval)

	if err := j.RunOnce(ctx); err != nil {
		slog.Error("quota reset pass failed", "error", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("quota reset job stopped")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				slog.Error("quota reset pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single reset pass across users, organizations and
// ledgers. Partial failures don't stop the remaining stores.
func (j *ResetJob) RunOnce(ctx context.Context) error {
	var errs []error

	usersReset, err := j.users.ResetStaleQuotas(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	orgsReset, err := j.orgs.ResetStaleUsage(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	ledgersReset, err := j.ledgers.ResetStale(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	if usersReset+orgsReset+ledgersReset > 0 {
		slog.Info("monthly quota reset applied",
			"users", usersReset, "organizations", orgsReset, "ledgers", ledgersReset)
	}
	return errors.Join(errs...)
}
