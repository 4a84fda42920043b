package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline-hq/bookline/internal/shared"
)

// Repository defines data access for user records and memberships.
type Repository interface {
	FindUser(ctx context.Context, id string) (*Record, error)
	FindMembership(ctx context.Context, userID, tenantID string) (*Membership, error)
}

// PGRepository is the postgres-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindUser fetches a user account by ID.
func (r *PGRepository) FindUser(ctx context.Context, id string) (*Record, error) {
	const query = `
		SELECT id, tenant_id, role, is_superadmin, is_active, api_key_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	var rec Record
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.Role,
		&rec.IsSuperAdmin,
		&rec.IsActive,
		&rec.APIKeyHash,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindMembership fetches a user's membership in a specific tenant.
func (r *PGRepository) FindMembership(ctx context.Context, userID, tenantID string) (*Membership, error) {
	const query = `
		SELECT user_id, tenant_id, role, created_at
		FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2`
	var m Membership
	err := r.pool.QueryRow(ctx, query, userID, tenantID).Scan(
		&m.UserID,
		&m.TenantID,
		&m.Role,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
