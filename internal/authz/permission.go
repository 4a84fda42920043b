package authz

import (
	"fmt"
	"regexp"
	"strings"
)

// Scope narrows a permission to resources the actor owns, or widens it to
// the whole tenant.
type Scope string

const (
	ScopeOwn Scope = "own"
	ScopeAll Scope = "all"
)

// permissionPattern is the binding wire contract for permission strings.
// A string violating it is a programming error and is denied, not treated
// as user input.
var permissionPattern = regexp.MustCompile(`^[a-z_]+:[a-z_]+:(own|all)$`)

// Permission is the parsed form of a resource:action:scope string.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// String reassembles the canonical permission string.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action + ":" + string(p.Scope)
}

// ParsePermission validates raw against the permission grammar and splits
// it into its parts.
func ParsePermission(raw string) (Permission, error) {
	if !permissionPattern.MatchString(raw) {
		return Permission{}, fmt.Errorf("authz: malformed permission %q", raw)
	}
	parts := strings.SplitN(raw, ":", 3)
	return Permission{
		Resource: parts[0],
		Action:   parts[1],
		Scope:    Scope(parts[2]),
	}, nil
}

// ValidPermission reports whether raw satisfies the permission grammar.
func ValidPermission(raw string) bool {
	return permissionPattern.MatchString(raw)
}

// permWildcard marks a cached set as granting every permission. Only
// superadmin resolution produces it.
const permWildcard = "*"

// PermissionSet is a resolved set of permission strings.
type PermissionSet map[string]struct{}

// Has reports membership, honouring the superadmin wildcard.
func (s PermissionSet) Has(perm string) bool {
	if _, ok := s[permWildcard]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

// Strings returns the set as a sorted-insensitive slice for transport.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for perm := range s {
		out = append(out, perm)
	}
	return out
}
