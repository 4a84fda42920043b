package authz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLoader serves canned users and can inject failures.
type stubLoader struct {
	mu      sync.Mutex
	users   map[string]*UnifiedUser
	loadErr error
	calls   int
}

func newStubLoader(users ...*UnifiedUser) *stubLoader {
	byID := make(map[string]*UnifiedUser, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &stubLoader{users: byID}
}

func (l *stubLoader) LoadUser(ctx context.Context, userID, tenantHint string) (*UnifiedUser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	user, ok := l.users[userID]
	if !ok || !user.Active {
		return nil, nil
	}
	if tenantHint != "" && tenantHint != user.TenantID && !user.IsSuperAdmin {
		return nil, nil
	}
	return user, nil
}

// captureEmitter records emitted events synchronously.
type captureEmitter struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (c *captureEmitter) Emit(event AuditEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureEmitter) all() []AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuditEvent(nil), c.events...)
}

var testLogger = slog.New(slog.DiscardHandler)

func newTestEngine(t *testing.T, loader *stubLoader, opts ...EngineOption) *Engine {
	t.Helper()
	resolver := NewResolver(loader, NewMemoryStore(), testLogger)
	return NewEngine(loader, resolver, testLogger, opts...)
}

var (
	staffUser      = &UnifiedUser{ID: "u-staff", TenantID: "t1", Role: RoleStaff, Active: true}
	managerUser    = &UnifiedUser{ID: "u-manager", TenantID: "t1", Role: RoleManager, Active: true}
	ownerUser      = &UnifiedUser{ID: "u-owner", TenantID: "t1", Role: RoleOwner, Active: true}
	superadminUser = &UnifiedUser{ID: "u-root", TenantID: "t0", Role: RoleOwner, IsSuperAdmin: true, Active: true}
)

func TestCheckAccessStaffOwnBookingGranted(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: staffUser.ID,
	})

	assert.True(t, result.Granted)
	assert.Empty(t, result.Reason)
	assert.Equal(t, SecurityNormal, result.SecurityLevel)
	assert.False(t, result.AuditRequired)
}

func TestCheckAccessStaffSystemPermissionDenied(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	result := engine.CheckAccess(context.Background(), staffUser.ID, PermSystemManageAll, PermissionContext{TenantID: "t1"})

	assert.False(t, result.Granted)
	assert.Contains(t, result.Reason, "Permission not granted")
}

func TestCheckAccessTenantIsolationDenied(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(managerUser))

	result := engine.CheckAccess(context.Background(), managerUser.ID, PermTeamManageAll, PermissionContext{
		TenantID:       "t1",
		TargetTenantID: "t2",
	})

	assert.False(t, result.Granted)
	assert.Equal(t, ReasonTenantIsolation, result.Reason)
	assert.Equal(t, SecurityCritical, result.SecurityLevel)
	assert.True(t, result.AuditRequired)
}

func TestCheckAccessOwnerInheritsFullHierarchy(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(ownerUser))

	for _, perm := range []string{PermBookingReadOwn, PermTeamManageAll, PermTenantManageAll} {
		result := engine.CheckAccess(context.Background(), ownerUser.ID, perm, PermissionContext{
			TenantID:        "t1",
			ResourceOwnerID: ownerUser.ID,
		})
		assert.True(t, result.Granted, "owner should hold %s", perm)
	}
}

func TestCheckAccessSuperadminCrossTenantGranted(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(superadminUser))

	result := engine.CheckAccess(context.Background(), superadminUser.ID, PermTenantReadAll, PermissionContext{
		TenantID:       "t0",
		TargetTenantID: "t-any",
	})

	assert.True(t, result.Granted)
	// A cross-tenant action stays critical even when granted.
	assert.Equal(t, SecurityCritical, result.SecurityLevel)
}

func TestCheckAccessMalformedPermissionDefaultDeny(t *testing.T) {
	for _, user := range []*UnifiedUser{staffUser, managerUser, ownerUser, superadminUser} {
		engine := newTestEngine(t, newStubLoader(user))
		result := engine.CheckAccess(context.Background(), user.ID, "foo:bar:baz", PermissionContext{TenantID: user.TenantID})
		assert.False(t, result.Granted, "role %s must not pass a malformed permission", user.Role)
		assert.Equal(t, ReasonPermissionNotGranted, result.Reason)
	}
}

func TestCheckAccessUnknownUserDenied(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	result := engine.CheckAccess(context.Background(), "nobody", PermBookingReadOwn, PermissionContext{TenantID: "t1"})

	assert.False(t, result.Granted)
	assert.Equal(t, ReasonUserNotFound, result.Reason)
	assert.Equal(t, SecurityCritical, result.SecurityLevel)
	assert.True(t, result.AuditRequired)
}

func TestCheckAccessInactiveUserDenied(t *testing.T) {
	inactive := &UnifiedUser{ID: "u-gone", TenantID: "t1", Role: RoleStaff, Active: false}
	engine := newTestEngine(t, newStubLoader(inactive))

	result := engine.CheckAccess(context.Background(), inactive.ID, PermBookingReadOwn, PermissionContext{TenantID: "t1"})

	assert.False(t, result.Granted)
	assert.Equal(t, ReasonUserNotFound, result.Reason)
}

func TestCheckAccessInfraErrorFailsClosed(t *testing.T) {
	loader := newStubLoader(staffUser)
	loader.loadErr = errors.New("connection refused")
	engine := newTestEngine(t, loader)

	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{TenantID: "t1"})

	assert.False(t, result.Granted)
	assert.Equal(t, ReasonIndeterminate, result.Reason)
	assert.Equal(t, SecurityCritical, result.SecurityLevel)
	assert.True(t, result.AuditRequired)
}

func TestCheckAccessOwnershipNarrowing(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	// Base permission is held ...
	held, err := engine.Resolver().HasPermission(context.Background(), staffUser.ID, "t1", PermBookingReadOwn)
	require.NoError(t, err)
	require.True(t, held)

	// ... but a foreign owner still denies.
	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: "someone-else",
	})
	assert.False(t, result.Granted)
	assert.Equal(t, ReasonSelfAccess, result.Reason)
	assert.Equal(t, SecurityElevated, result.SecurityLevel)
}

func TestCheckAccessOwnershipFallsBackToTargetUser(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingUpdateOwn, PermissionContext{
		TenantID:     "t1",
		TargetUserID: staffUser.ID,
	})

	assert.True(t, result.Granted)
}

func TestCheckAccessTimeRestriction(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2026, 8, 23, 23, 30, 0, 0, time.UTC) // Sunday, 23:30
	}
	engine := newTestEngine(t, newStubLoader(staffUser), WithClock(clock))

	businessHours := &TimeRestriction{StartHour: 9, EndHour: 18}
	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: staffUser.ID,
		TimeRestriction: businessHours,
	})
	assert.False(t, result.Granted)
	assert.Equal(t, ReasonTimeWindow, result.Reason)
	assert.Equal(t, SecurityElevated, result.SecurityLevel)

	overnight := &TimeRestriction{StartHour: 22, EndHour: 6}
	result = engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: staffUser.ID,
		TimeRestriction: overnight,
	})
	assert.True(t, result.Granted)
}

func TestCheckAccessTimeRestrictionWeekday(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC) // Sunday
	}
	engine := newTestEngine(t, newStubLoader(staffUser), WithClock(clock))

	weekdaysOnly := &TimeRestriction{
		StartHour: 9,
		EndHour:   18,
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: staffUser.ID,
		TimeRestriction: weekdaysOnly,
	})

	assert.False(t, result.Granted)
	assert.Equal(t, ReasonTimeWindow, result.Reason)
}

func TestCheckAccessIPRestriction(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser))

	base := PermissionContext{
		TenantID:        "t1",
		ResourceOwnerID: staffUser.ID,
		AllowedIPs:      []string{"10.0.0.0/8", "192.168.1.10"},
	}

	allowed := base
	allowed.IPAddress = "10.1.2.3"
	assert.True(t, engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, allowed).Granted)

	exact := base
	exact.IPAddress = "192.168.1.10"
	assert.True(t, engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, exact).Granted)

	denied := base
	denied.IPAddress = "203.0.113.7"
	result := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, denied)
	assert.False(t, result.Granted)
	assert.Equal(t, ReasonIPRestriction, result.Reason)

	missing := base
	missing.IPAddress = ""
	assert.False(t, engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, missing).Granted)
}

func TestCheckAccessAuditClassification(t *testing.T) {
	engine := newTestEngine(t, newStubLoader(staffUser, managerUser))

	// Sensitive operation denied: audited and critical.
	denied := engine.CheckAccess(context.Background(), staffUser.ID, PermUserManageAll, PermissionContext{
		TenantID:      "t1",
		OperationType: OpDelete,
		ResourceType:  ResourceUser,
	})
	assert.False(t, denied.Granted)
	assert.True(t, denied.AuditRequired)
	assert.Equal(t, SecurityCritical, denied.SecurityLevel)

	// Same class of operation granted: still audited.
	granted := engine.CheckAccess(context.Background(), managerUser.ID, PermBookingCancelAll, PermissionContext{
		TenantID:      "t1",
		OperationType: OpDelete,
	})
	assert.True(t, granted.Granted)
	assert.True(t, granted.AuditRequired)
	assert.Equal(t, SecurityElevated, granted.SecurityLevel)
}

func TestCheckAccessEmitsAuditEvents(t *testing.T) {
	emitter := &captureEmitter{}
	loader := newStubLoader(managerUser)
	engine := newTestEngine(t, loader, WithEmitter(emitter))

	// Non-sensitive read: no audit event.
	engine.CheckAccess(context.Background(), managerUser.ID, PermBookingReadAll, PermissionContext{TenantID: "t1"})
	assert.Empty(t, emitter.all())

	// Sensitive operation: audited with the decision outcome.
	engine.CheckAccess(context.Background(), managerUser.ID, PermTenantManageAll, PermissionContext{
		TenantID:     "t1",
		ResourceType: ResourceTenant,
	})
	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, managerUser.ID, events[0].UserID)
	assert.Equal(t, "t1", events[0].TenantID)
	assert.Equal(t, PermTenantManageAll, events[0].Permission)
	assert.False(t, events[0].Granted)
}

func TestCheckAccessIdempotent(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}
	engine := newTestEngine(t, newStubLoader(staffUser), WithClock(clock))

	pc := PermissionContext{TenantID: "t1", ResourceOwnerID: staffUser.ID}
	first := engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, pc)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.CheckAccess(context.Background(), staffUser.ID, PermBookingReadOwn, pc))
	}
}
