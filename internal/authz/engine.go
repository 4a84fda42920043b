package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookline-hq/bookline/internal/observability"
)

// Deny reasons surfaced in AccessResult. These strings are part of the
// API contract with callers.
const (
	ReasonUserNotFound         = "User not found"
	ReasonTenantIsolation      = "Tenant isolation violation"
	ReasonPermissionNotGranted = "Permission not granted"
	ReasonSelfAccess           = "Self-access restriction"
	ReasonTimeWindow           = "Outside allowed time window"
	ReasonIPRestriction        = "IP restriction"
	ReasonIndeterminate        = "Authorization indeterminate"
)

// Engine runs the ordered access-decision pipeline. Rules are evaluated
// strictly in order and the first failing rule terminates with a denial.
type Engine struct {
	loader   UserLoader
	resolver *Resolver
	emitter  AuditEmitter
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock injects the clock used by time-restriction evaluation.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEmitter wires the async audit emitter.
func WithEmitter(emitter AuditEmitter) EngineOption {
	return func(e *Engine) { e.emitter = emitter }
}

// WithEngineMetrics wires decision instrumentation.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs an Engine.
func NewEngine(loader UserLoader, resolver *Resolver, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:   loader,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver exposes the underlying permission resolver for callers that
// need set-level checks without a full context.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// CheckAccess decides whether userID may exercise permission under the
// given context. It always returns a structured result; infrastructure
// failures are converted to a denied critical result, never surfaced as
// an error from this entry point.
func (e *Engine) CheckAccess(ctx context.Context, userID, permission string, pc PermissionContext) AccessResult {
	start := time.Now()
	result := e.evaluate(ctx, userID, permission, pc)
	e.metrics.RecordDecision(result.Granted, string(result.SecurityLevel), time.Since(start))
	if result.AuditRequired && e.emitter != nil {
		e.emitter.Emit(AuditEvent{
			UserID:        userID,
			TenantID:      effectiveTenant(pc),
			Permission:    permission,
			Granted:       result.Granted,
			Reason:        result.Reason,
			SecurityLevel: result.SecurityLevel,
			At:            e.now(),
		})
	}
	return result
}

func (e *Engine) evaluate(ctx context.Context, userID, permission string, pc PermissionContext) AccessResult {
	sensitive := operationAuditRequired(pc)

	// Rule 1: identity validation.
	user, err := e.loader.LoadUser(ctx, userID, pc.TenantID)
	if err != nil {
		e.logger.Error("user load failed during access check",
			slog.String("user_id", userID), slog.Any("error", err))
		return AccessResult{
			Reason:        ReasonIndeterminate,
			AuditRequired: true,
			SecurityLevel: SecurityCritical,
		}
	}
	if user == nil {
		return AccessResult{
			Reason:        ReasonUserNotFound,
			AuditRequired: true,
			SecurityLevel: SecurityCritical,
		}
	}

	crossTenant := pc.TargetTenantID != "" && pc.TargetTenantID != user.TenantID
	baseLevel := e.baseLevel(user, pc, crossTenant)

	// Rule 2: tenant isolation. No permission string overrides this.
	if crossTenant && !user.IsSuperAdmin {
		return AccessResult{
			Reason:        ReasonTenantIsolation,
			AuditRequired: true,
			SecurityLevel: SecurityCritical,
		}
	}

	// Rule 3: base permission. Malformed strings are denied here too.
	perm, perr := ParsePermission(permission)
	if perr != nil {
		e.logger.Error("malformed permission string denied",
			slog.String("permission", permission), slog.String("user_id", userID))
		return AccessResult{
			Reason:        ReasonPermissionNotGranted,
			AuditRequired: sensitive,
			SecurityLevel: SecurityCritical,
		}
	}
	if !user.IsSuperAdmin {
		ok, err := e.resolver.HasPermission(ctx, user.ID, user.TenantID, permission)
		if err != nil {
			e.logger.Error("permission resolution failed",
				slog.String("user_id", userID), slog.Any("error", err))
			return AccessResult{
				Reason:        ReasonIndeterminate,
				AuditRequired: true,
				SecurityLevel: SecurityCritical,
			}
		}
		if !ok {
			return e.deny(ReasonPermissionNotGranted, SecurityNormal, sensitive, baseLevel)
		}
	}

	// Rule 4: ownership refinement narrows an already-granted base
	// permission; it never widens one.
	if perm.Scope == ScopeOwn {
		ownerID := pc.ResourceOwnerID
		if ownerID == "" {
			ownerID = pc.TargetUserID
		}
		if ownerID != user.ID {
			return e.deny(ReasonSelfAccess, SecurityElevated, sensitive, baseLevel)
		}
	}

	// Rule 5: time restriction.
	if !pc.TimeRestriction.Allows(e.now()) {
		return e.deny(ReasonTimeWindow, SecurityElevated, sensitive, baseLevel)
	}

	// Rule 6: IP restriction.
	if len(pc.AllowedIPs) > 0 && !ipAllowed(pc.IPAddress, pc.AllowedIPs) {
		return e.deny(ReasonIPRestriction, SecurityElevated, sensitive, baseLevel)
	}

	// Rule 7: grant.
	return AccessResult{
		Granted:       true,
		AuditRequired: sensitive,
		SecurityLevel: baseLevel,
	}
}

// baseLevel classifies the operation independent of the outcome.
func (e *Engine) baseLevel(user *UnifiedUser, pc PermissionContext, crossTenant bool) SecurityLevel {
	if crossTenant {
		return SecurityCritical
	}
	if user.TenantID == "" && !user.IsSuperAdmin {
		return SecurityCritical
	}
	if mutatingOperation(pc.OperationType) && (user.Role == RoleManager || user.Role == RoleOwner) {
		return SecurityElevated
	}
	return SecurityNormal
}

// deny builds a denial, escalating the level when the operation is one
// that must be audited.
func (e *Engine) deny(reason string, ruleLevel SecurityLevel, sensitive bool, baseLevel SecurityLevel) AccessResult {
	level := maxLevel(ruleLevel, baseLevel)
	if sensitive {
		level = SecurityCritical
	}
	return AccessResult{
		Reason:        reason,
		AuditRequired: sensitive,
		SecurityLevel: level,
	}
}

// operationAuditRequired implements the audit classification. It depends
// only on what is being attempted, never on whether it succeeded.
func operationAuditRequired(pc PermissionContext) bool {
	switch pc.OperationType {
	case OpDelete, OpConfigure, OpSystemLevel:
		return true
	}
	switch pc.ResourceType {
	case ResourceUser, ResourceTenant, ResourceBilling:
		return true
	}
	return false
}

func mutatingOperation(op string) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpConfigure, OpSystemLevel:
		return true
	}
	return false
}

func maxLevel(a, b SecurityLevel) SecurityLevel {
	rank := map[SecurityLevel]int{SecurityNormal: 0, SecurityElevated: 1, SecurityCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func effectiveTenant(pc PermissionContext) string {
	if pc.TargetTenantID != "" {
		return pc.TargetTenantID
	}
	return pc.TenantID
}
