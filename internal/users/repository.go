package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]User, error)
	IncrementQuotaUsed(ctx context.Context, id uuid.UUID, delta int64) error
	SetMonthlyLimit(ctx context.Context, id uuid.UUID, limit *int64) error
	ResetStaleQuotas(ctx context.Context) (int64, error)
}

const userColumns = `id, email, password_hash, name, role, tier, organization_id,
	quota_monthly_limit, quota_used, quota_reset_at, is_active, created_at, updated_at`

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, tier, organization_id,
		                   quota_monthly_limit, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role, user.Tier,
		user.OrganizationID, user.QuotaMonthlyLimit, user.IsActive,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), "querying user by id")
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email), "querying user by email")
}

func (r *postgresRepository) scanOne(row pgx.Row, op string) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role, &user.Tier,
		&user.OrganizationID, &user.QuotaMonthlyLimit, &user.QuotaUsed, &user.QuotaResetAt,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE organization_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying users by organization: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Tier,
			&u.OrganizationID, &u.QuotaMonthlyLimit, &u.QuotaUsed, &u.QuotaResetAt,
			&u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// IncrementQuotaUsed adds delta to the user's consumed budget. Single-row
// atomic update; the caller is responsible for having checked the limit.
func (r *postgresRepository) IncrementQuotaUsed(ctx context.Context, id uuid.UUID, delta int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET quota_used = quota_used + $2,
		     updated_at = NOW()
		 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("incrementing user quota: %w", err)
	}
	return nil
}

// SetMonthlyLimit sets or clears (nil) the organization-assigned budget.
func (r *postgresRepository) SetMonthlyLimit(ctx context.Context, id uuid.UUID, limit *int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET quota_monthly_limit = $2,
		     updated_at = NOW()
		 WHERE id = $1`, id, limit)
	if err != nil {
		return fmt.Errorf("setting user monthly limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("setting user monthly limit: user %s not found", id)
	}
	return nil
}

// ResetStaleQuotas zeroes the consumed budget of every user whose last
// reset happened in a previous calendar month (or never). Idempotent across
// restarts and repeated runs within the same month.
func (r *postgresRepository) ResetStaleQuotas(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET quota_used = 0,
		     quota_reset_at = NOW(),
		     updated_at = NOW()
		 WHERE quota_reset_at IS NULL OR quota_reset_at < date_trunc('month', NOW())`)
	if err != nil {
		return 0, fmt.Errorf("resetting user quotas: %w", err)
	}
	return tag.RowsAffected(), nil
}
