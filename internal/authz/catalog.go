package authz

// Role represents a tenant-level permission grouping. Roles form a strict
// hierarchy: staff < manager < owner < superadmin.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleManager    Role = "manager"
	RoleOwner      Role = "owner"
	RoleSuperadmin Role = "superadmin"
)

// Booking permissions declared for the platform catalog.
const (
	PermBookingReadOwn   = "booking:read:own"
	PermBookingReadAll   = "booking:read:all"
	PermBookingCreateOwn = "booking:create:own"
	PermBookingUpdateOwn = "booking:update:own"
	PermBookingUpdateAll = "booking:update:all"
	PermBookingCancelOwn = "booking:cancel:own"
	PermBookingCancelAll = "booking:cancel:all"
)

// Schedule and customer permissions.
const (
	PermScheduleReadOwn   = "schedule:read:own"
	PermScheduleManageAll = "schedule:manage:all"
	PermCustomerReadOwn   = "customer:read:own"
	PermCustomerReadAll   = "customer:read:all"
)

// Team, reporting and tenant administration permissions.
const (
	PermTeamManageAll    = "team:manage:all"
	PermReportViewAll    = "report:view:all"
	PermReportExportAll  = "report:export:all"
	PermUserManageAll    = "user:manage:all"
	PermTenantReadAll    = "tenant:read:all"
	PermTenantManageAll  = "tenant:manage:all"
	PermBillingReadAll   = "billing:read:all"
	PermBillingManageAll = "billing:manage:all"
)

// Platform-operator permissions. Only the superadmin tier carries these.
const (
	PermSystemManageAll    = "system:manage:all"
	PermSystemConfigureAll = "system:configure:all"
)

// BookingScopes lists all permissions related to bookings.
func BookingScopes() []string {
	return []string{
		PermBookingReadOwn,
		PermBookingReadAll,
		PermBookingCreateOwn,
		PermBookingUpdateOwn,
		PermBookingUpdateAll,
		PermBookingCancelOwn,
		PermBookingCancelAll,
	}
}

// TenantScopes lists all permissions related to tenant administration.
func TenantScopes() []string {
	return []string{
		PermTeamManageAll,
		PermUserManageAll,
		PermTenantReadAll,
		PermTenantManageAll,
		PermBillingReadAll,
		PermBillingManageAll,
	}
}

// SystemScopes lists platform-operator permissions.
func SystemScopes() []string {
	return []string{
		PermSystemManageAll,
		PermSystemConfigureAll,
	}
}

// roleGrants holds each role's explicit grants. Inherited permissions are
// resolved by walking roleSubordinates, never listed twice.
var roleGrants = map[Role][]string{
	RoleStaff: {
		PermBookingReadOwn,
		PermBookingCreateOwn,
		PermBookingUpdateOwn,
		PermBookingCancelOwn,
		PermScheduleReadOwn,
		PermCustomerReadOwn,
	},
	RoleManager: {
		PermBookingReadAll,
		PermBookingUpdateAll,
		PermBookingCancelAll,
		PermScheduleManageAll,
		PermCustomerReadAll,
		PermTeamManageAll,
		PermReportViewAll,
	},
	RoleOwner: {
		PermTenantReadAll,
		PermTenantManageAll,
		PermBillingReadAll,
		PermBillingManageAll,
		PermUserManageAll,
		PermReportExportAll,
	},
	RoleSuperadmin: {
		PermSystemManageAll,
		PermSystemConfigureAll,
	},
}

// roleSubordinates is the inheritance graph. Each role absorbs the grants
// of every role reachable from it.
var roleSubordinates = map[Role][]Role{
	RoleSuperadmin: {RoleOwner},
	RoleOwner:      {RoleManager},
	RoleManager:    {RoleStaff},
	RoleStaff:      {},
}

// RolePermissions resolves the effective permission set for a role by
// unioning its explicit grants with those of all subordinate roles.
// Unknown roles resolve to the empty set.
func RolePermissions(role Role) PermissionSet {
	set := make(PermissionSet)
	collectRolePermissions(role, set, make(map[Role]struct{}))
	return set
}

func collectRolePermissions(role Role, set PermissionSet, seen map[Role]struct{}) {
	if _, ok := seen[role]; ok {
		return
	}
	seen[role] = struct{}{}
	for _, perm := range roleGrants[role] {
		set[perm] = struct{}{}
	}
	for _, sub := range roleSubordinates[role] {
		collectRolePermissions(sub, set, seen)
	}
}

// KnownRole reports whether role exists in the hierarchy.
func KnownRole(role Role) bool {
	_, ok := roleGrants[role]
	return ok
}
