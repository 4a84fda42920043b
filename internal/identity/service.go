package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookline-hq/bookline/internal/authz"
	"github.com/bookline-hq/bookline/internal/shared"
)

// Service resolves authenticated identities into canonical user records.
// It implements authz.UserLoader.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// LoadUser resolves userID plus an optional tenant hint. It returns a nil
// user (not an error) when the user is inactive, absent, or not a member
// of the hinted tenant; superadmins bypass membership. Infrastructure
// failures are returned as errors so the engine can fail closed.
func (s *Service) LoadUser(ctx context.Context, userID, tenantHint string) (*authz.UnifiedUser, error) {
	if userID == "" {
		return nil, nil
	}
	rec, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: find user %s: %w", userID, err)
	}
	if !rec.IsActive {
		return nil, nil
	}

	user := &authz.UnifiedUser{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		Role:         authz.Role(rec.Role),
		IsSuperAdmin: rec.IsSuperAdmin,
		Active:       rec.IsActive,
	}
	if tenantHint == "" || tenantHint == rec.TenantID || rec.IsSuperAdmin {
		return user, nil
	}

	member, err := s.repo.FindMembership(ctx, userID, tenantHint)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: membership %s/%s: %w", userID, tenantHint, err)
	}
	user.TenantID = member.TenantID
	user.Role = authz.Role(member.Role)
	return user, nil
}

// VerifyAPIKey validates a service API key against the stored bcrypt
// hash. Missing and inactive accounts collapse into the same credential
// failure.
func (s *Service) VerifyAPIKey(ctx context.Context, userID, secret string) (*authz.UnifiedUser, error) {
	rec, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("identity: verify api key: %w", err)
	}
	if !rec.IsActive || rec.APIKeyHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.APIKeyHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return &authz.UnifiedUser{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		Role:         authz.Role(rec.Role),
		IsSuperAdmin: rec.IsSuperAdmin,
		Active:       rec.IsActive,
	}, nil
}
