package quota

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minara-ai/minara/internal/config"
)

// LedgerRepository handles usage_ledgers PostgreSQL operations.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const ledgerColumns = `user_id, tier, token_usage_monthly, message_count_monthly,
	limit_tokens, limit_messages, last_reset, updated_at`

// GetOrCreate returns the user's ledger, creating one seeded with the given
// tier limits if it doesn't exist. The insert-then-read shape makes two
// concurrent first calls converge on a single row instead of racing.
func (r *LedgerRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, tier string, limits config.TierLimits) (*Ledger, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_ledgers (user_id, tier, limit_tokens, limit_messages)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, tier, limits.Tokens, limits.Messages)
	if err != nil {
		return nil, fmt.Errorf("ensuring usage ledger: %w", err)
	}

	var l Ledger
	err = r.pool.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM usage_ledgers WHERE user_id = $1`, userID,
	).Scan(&l.UserID, &l.Tier, &l.TokenUsage, &l.MessageCount,
		&l.LimitTokens, &l.LimitMessages, &l.LastReset, &l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching usage ledger: %w", err)
	}
	return &l, nil
}

// IncrementTokens adds units to the ledger's monthly token counter.
func (r *LedgerRepository) IncrementTokens(ctx context.Context, userID uuid.UUID, units int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE usage_ledgers
		 SET token_usage_monthly = token_usage_monthly + $2,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID, units)
	if err != nil {
		return fmt.Errorf("incrementing ledger tokens: %w", err)
	}
	return nil
}

// IncrementMessages bumps the ledger's monthly message counter.
func (r *LedgerRepository) IncrementMessages(ctx context.Context, userID uuid.UUID, count int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE usage_ledgers
		 SET message_count_monthly = message_count_monthly + $2,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID, count)
	if err != nil {
		return fmt.Errorf("incrementing ledger messages: %w", err)
	}
	return nil
}

// ResetStale zeroes monthly counters for ledgers last reset in a previous
// calendar month. Returns the number of ledgers reset.
func (r *LedgerRepository) ResetStale(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_ledgers
		 SET token_usage_monthly = 0,
		     message_count_monthly = 0,
		     last_reset = NOW(),
		     updated_at = NOW()
		 WHERE last_reset < date_trunc('month', NOW())`)
	if err != nil {
		return 0, fmt.Errorf("resetting usage ledgers: %w", err)
	}
	return tag.RowsAffected(), nil
}
