package identity

import "time"

// Record is a stored user account row.
type Record struct {
	ID           string
	TenantID     string
	Role         string
	IsSuperAdmin bool
	IsActive     bool
	APIKeyHash   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership links a user to a tenant other than their home tenant, with
// the role they hold there.
type Membership struct {
	UserID    string
	TenantID  string
	Role      string
	CreatedAt time.Time
}
