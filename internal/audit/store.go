// Package audit persists authorization audit events consumed from the
// async pipeline.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is a stored audit record.
type Entry struct {
	ID            string
	UserID        string
	TenantID      string
	Permission    string
	Granted       bool
	Reason        string
	SecurityLevel string
	At            time.Time
}

// Store writes audit entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
}

// PGStore persists entries into authz_audit_log.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a new PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert persists the entry.
func (s *PGStore) Insert(ctx context.Context, entry Entry) error {
	if s == nil || s.pool == nil {
		return errors.New("audit store not initialised")
	}
	if entry.UserID == "" || entry.Permission == "" {
		return errors.New("audit entry requires user_id/permission")
	}
	const query = `
		INSERT INTO authz_audit_log (id, user_id, tenant_id, permission, granted, reason, security_level, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.TenantID,
		entry.Permission,
		entry.Granted,
		entry.Reason,
		entry.SecurityLevel,
		entry.At,
	)
	return err
}

// RecentForTenant returns the latest entries for a tenant, newest first.
func (s *PGStore) RecentForTenant(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, tenant_id, permission, granted, reason, security_level, occurred_at
		FROM authz_audit_log
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TenantID, &e.Permission, &e.Granted, &e.Reason, &e.SecurityLevel, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
