package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetByHead(ctx context.Context, headUserID uuid.UUID) (*Organization, error)
	IncrementUsage(ctx context.Context, id uuid.UUID, delta int64) error
	ResetStaleUsage(ctx context.Context) (int64, error)

	InsertQuotaRequest(ctx context.Context, req *QuotaRequest) error
	ListPendingRequests(ctx context.Context, orgID uuid.UUID) ([]QuotaRequest, error)
	GetQuotaRequest(ctx context.Context, id uuid.UUID) (*QuotaRequest, error)
	ResolveQuotaRequest(ctx context.Context, id uuid.UUID, status string, resolvedBy uuid.UUID) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const orgColumns = `id, name, head_user_id, usage_total_limit, usage_used,
	usage_reset_at, is_active, created_at, updated_at`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), "querying organization by id")
}

func (r *postgresRepository) GetByHead(ctx context.Context, headUserID uuid.UUID) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE head_user_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, headUserID), "querying organization by head")
}

func (r *postgresRepository) scanOne(row pgx.Row, op string) (*Organization, error) {
	org := &Organization{}
	err := row.Scan(
		&org.ID, &org.Name, &org.HeadUserID, &org.UsageTotalLimit, &org.UsageUsed,
		&org.UsageResetAt, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return org, nil
}

// IncrementUsage adds delta to the organization's aggregate consumption.
// Single-row atomic update.
func (r *postgresRepository) IncrementUsage(ctx context.Context, id uuid.UUID, delta int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE organizations
		 SET usage_used = usage_used + $2,
		     updated_at = NOW()
		 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("incrementing organization usage: %w", err)
	}
	return nil
}

// ResetStaleUsage zeroes aggregate usage for organizations last reset in a
// previous calendar month (or never).
func (r *postgresRepository) ResetStaleUsage(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE organizations
		 SET usage_used = 0,
		     usage_reset_at = NOW(),
		     updated_at = NOW()
		 WHERE usage_reset_at IS NULL OR usage_reset_at < date_trunc('month', NOW())`)
	if err != nil {
		return 0, fmt.Errorf("resetting organization usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresRepository) InsertQuotaRequest(ctx context.Context, req *QuotaRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quota_requests (id, user_id, requested_limit, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		req.ID, req.UserID, req.RequestedLimit, req.Reason, RequestPending)
	if err != nil {
		return fmt.Errorf("inserting quota request: %w", err)
	}
	return nil
}

// ListPendingRequests returns pending requests from the organization's members.
func (r *postgresRepository) ListPendingRequests(ctx context.Context, orgID uuid.UUID) ([]QuotaRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT qr.id, qr.user_id, u.email, qr.requested_limit, qr.reason, qr.status,
		        qr.resolved_by, qr.resolved_at, qr.created_at
		 FROM quota_requests qr
		 JOIN users u ON u.id = qr.user_id
		 WHERE u.organization_id = $1 AND qr.status = $2
		 ORDER BY qr.created_at`, orgID, RequestPending)
	if err != nil {
		return nil, fmt.Errorf("querying pending quota requests: %w", err)
	}
	defer rows.Close()

	var out []QuotaRequest
	for rows.Next() {
		var q QuotaRequest
		if err := rows.Scan(&q.ID, &q.UserID, &q.UserEmail, &q.RequestedLimit, &q.Reason,
			&q.Status, &q.ResolvedBy, &q.ResolvedAt, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning quota request: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *postgresRepository) GetQuotaRequest(ctx context.Context, id uuid.UUID) (*QuotaRequest, error) {
	q := &QuotaRequest{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, requested_limit, reason, status, resolved_by, resolved_at, created_at
		 FROM quota_requests WHERE id = $1`, id,
	).Scan(&q.ID, &q.UserID, &q.RequestedLimit, &q.Reason, &q.Status,
		&q.ResolvedBy, &q.ResolvedAt, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying quota request: %w", err)
	}
	return q, nil
}

// ResolveQuotaRequest flips a pending request to approved/denied. Returns
// false if the request was missing or already resolved.
func (r *postgresRepository) ResolveQuotaRequest(ctx context.Context, id uuid.UUID, status string, resolvedBy uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quota_requests
		 SET status = $2,
		     resolved_by = $3,
		     resolved_at = NOW()
		 WHERE id = $1 AND status = $4`, id, status, resolvedBy, RequestPending)
	if err != nil {
		return false, fmt.Errorf("resolving quota request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
