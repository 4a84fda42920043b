package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bookline-hq/bookline/internal/observability"
)

// ErrIndeterminate marks a check that could not be completed because of an
// infrastructure failure. It is distinguishable from an ordinary denial;
// callers must fail closed.
var ErrIndeterminate = errors.New("authz: indeterminate")

// UserLoader resolves an authenticated identity and an optional tenant
// hint into a canonical user record. A nil user without error means the
// user is inactive, absent, or not a member of the hinted tenant.
type UserLoader interface {
	LoadUser(ctx context.Context, userID, tenantHint string) (*UnifiedUser, error)
}

// DefaultPermissionTTL bounds how long a resolved permission set may be
// served from cache before it is recomputed.
const DefaultPermissionTTL = 5 * time.Minute

// Resolver computes and caches effective permission sets per
// (user, tenant) pair. Concurrent misses for the same key are coalesced
// into a single resolution.
type Resolver struct {
	loader  UserLoader
	store   PermissionSetStore
	group   singleflight.Group
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithPermissionTTL overrides the cache TTL.
func WithPermissionTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithResolverMetrics wires cache instrumentation.
func WithResolverMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver constructs a Resolver.
func NewResolver(loader UserLoader, store PermissionSetStore, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		loader: loader,
		store:  store,
		ttl:    DefaultPermissionTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSet returns the effective permission set for the pair, consulting
// the cache first. A user that cannot be resolved yields the empty set.
func (r *Resolver) ResolveSet(ctx context.Context, userID, tenantID string) (PermissionSet, error) {
	key := setKey(tenantID, userID)

	set, ok, err := r.store.Get(ctx, key)
	if err != nil {
		// A broken cache must not break authorization; fall through to a
		// fresh resolution.
		r.logger.Warn("permission cache read failed", slog.Any("error", err))
	}
	if ok {
		r.metrics.RecordPermissionCache("hit")
		return set, nil
	}
	r.metrics.RecordPermissionCache("miss")

	value, err, shared := r.group.Do(key, func() (any, error) {
		return r.resolveAndCache(ctx, key, userID, tenantID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.metrics.RecordPermissionCache("coalesced")
	}
	return value.(PermissionSet), nil
}

func (r *Resolver) resolveAndCache(ctx context.Context, key, userID, tenantID string) (PermissionSet, error) {
	user, err := r.loader.LoadUser(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: load user %s: %v", ErrIndeterminate, userID, err)
	}
	set := make(PermissionSet)
	if user != nil {
		if user.IsSuperAdmin {
			set[permWildcard] = struct{}{}
		} else {
			set = RolePermissions(user.Role)
		}
	}
	if err := r.store.Set(ctx, key, set, r.ttl); err != nil {
		r.logger.Warn("permission cache write failed", slog.Any("error", err))
	}
	return set, nil
}

// HasPermission reports whether the user holds the permission within the
// tenant. Infrastructure failures are returned, never converted to a
// grant or a plain denial.
func (r *Resolver) HasPermission(ctx context.Context, userID, tenantID, permission string) (bool, error) {
	set, err := r.ResolveSet(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	if !set.Has(permission) && !ValidPermission(permission) {
		r.logger.Error("malformed permission string denied",
			slog.String("permission", permission),
			slog.String("user_id", userID))
	}
	return set.Has(permission), nil
}

// HasAllPermissions reports whether every permission is held,
// short-circuiting on the first miss.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID, tenantID string, permissions []string) (bool, error) {
	for _, perm := range permissions {
		ok, err := r.HasPermission(ctx, userID, tenantID, perm)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasAnyPermissions reports whether at least one permission is held,
// short-circuiting on the first hit.
func (r *Resolver) HasAnyPermissions(ctx context.Context, userID, tenantID string, permissions []string) (bool, error) {
	for _, perm := range permissions {
		ok, err := r.HasPermission(ctx, userID, tenantID, perm)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate evicts one user's cached set, for role changes.
func (r *Resolver) Invalidate(ctx context.Context, userID, tenantID string) error {
	return r.store.Delete(ctx, setKey(tenantID, userID))
}

// InvalidateTenant evicts every cached set for a tenant, for membership
// changes.
func (r *Resolver) InvalidateTenant(ctx context.Context, tenantID string) error {
	return r.store.DeleteTenant(ctx, tenantID)
}
