package authz

import (
	"net/netip"
	"time"
)

// UnifiedUser is the canonical actor record the engine evaluates against.
// It is immutable for the duration of a request.
type UnifiedUser struct {
	ID           string
	TenantID     string
	Role         Role
	IsSuperAdmin bool
	Active       bool
}

// PermissionContext carries the per-call evaluation context. It is built
// fresh for every check and never persisted or cached.
type PermissionContext struct {
	UserID          string
	TenantID        string
	TargetTenantID  string
	TargetUserID    string
	ResourceID      string
	ResourceOwnerID string
	IPAddress       string
	AllowedIPs      []string
	TimeRestriction *TimeRestriction
	OperationType   string
	ResourceType    string
}

// Operation types that force audit logging.
const (
	OpDelete      = "delete"
	OpConfigure   = "configure"
	OpSystemLevel = "system-level"
	OpCreate      = "create"
	OpUpdate      = "update"
	OpRead        = "read"
)

// Resource types that force audit logging.
const (
	ResourceUser    = "user"
	ResourceTenant  = "tenant"
	ResourceBilling = "billing"
)

// SecurityLevel classifies a decision for downstream alerting.
type SecurityLevel string

const (
	SecurityNormal   SecurityLevel = "normal"
	SecurityElevated SecurityLevel = "elevated"
	SecurityCritical SecurityLevel = "critical"
)

// AccessResult is the engine's final decision. AuditRequired is computed
// from the operation, independent of Granted.
type AccessResult struct {
	Granted       bool          `json:"granted"`
	Reason        string        `json:"reason,omitempty"`
	AuditRequired bool          `json:"audit_required"`
	SecurityLevel SecurityLevel `json:"security_level"`
}

// TimeRestriction limits a grant to an hour window on selected weekdays.
// StartHour > EndHour describes an overnight window (e.g. 22 to 6).
type TimeRestriction struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Days      []time.Weekday `json:"days,omitempty"`
	Timezone  string         `json:"timezone,omitempty"`
}

// Allows reports whether t falls inside the restriction window. An
// unresolvable timezone fails closed.
func (tr *TimeRestriction) Allows(t time.Time) bool {
	if tr == nil {
		return true
	}
	if tr.Timezone != "" {
		loc, err := time.LoadLocation(tr.Timezone)
		if err != nil {
			return false
		}
		t = t.In(loc)
	}
	if len(tr.Days) > 0 {
		ok := false
		for _, day := range tr.Days {
			if t.Weekday() == day {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	hour := t.Hour()
	switch {
	case tr.StartHour == tr.EndHour:
		// Degenerate window: only meaningful as "no hour bound".
		return tr.StartHour == 0
	case tr.StartHour < tr.EndHour:
		return hour >= tr.StartHour && hour < tr.EndHour
	default:
		return hour >= tr.StartHour || hour < tr.EndHour
	}
}

// ipAllowed reports whether ip matches any entry in allowed. Entries may
// be single addresses or CIDR prefixes. Unparseable input fails closed.
func ipAllowed(ip string, allowed []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, entry := range allowed {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if other, err := netip.ParseAddr(entry); err == nil && other == addr {
			return true
		}
	}
	return false
}
