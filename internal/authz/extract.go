package authz

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// HeaderTenantID is the only header the extractor consults. Every other
// header is untrusted by construction: a client-supplied "elevation" or
// "bypass" header can never alter the evaluation context.
const HeaderTenantID = "X-Tenant-ID"

// Path and query parameter names the extractor recognises.
const (
	paramTenantID = "tenantID"
	paramUserID   = "userID"
	paramResource = "resourceID"
	queryTenantID = "tenant_id"
)

// ContextFromRequest builds a PermissionContext from the request plus any
// explicit fields the caller already resolved. Tenant-id precedence when
// sources disagree: explicit context > path segment > X-Tenant-ID header
// > query parameter.
func ContextFromRequest(r *http.Request, explicit PermissionContext) PermissionContext {
	pc := explicit

	if pc.TargetTenantID == "" {
		pc.TargetTenantID = cleanParam(chi.URLParam(r, paramTenantID))
	}
	if pc.TargetTenantID == "" {
		pc.TargetTenantID = cleanParam(r.Header.Get(HeaderTenantID))
	}
	if pc.TargetTenantID == "" {
		pc.TargetTenantID = cleanParam(r.URL.Query().Get(queryTenantID))
	}

	if pc.TargetUserID == "" {
		pc.TargetUserID = cleanParam(chi.URLParam(r, paramUserID))
	}
	if pc.ResourceID == "" {
		pc.ResourceID = cleanParam(chi.URLParam(r, paramResource))
	}

	if pc.IPAddress == "" {
		pc.IPAddress = clientIP(r)
	}

	return pc
}

func cleanParam(v string) string {
	return strings.TrimSpace(v)
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr
// from trusted forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
