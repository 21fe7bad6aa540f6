package rbac

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleViewer  = "viewer"
)

const (
	PermRunCreate    = "run:create"
	PermRunView      = "run:view"
	PermRunViewAll   = "run:view-all"
	PermRunExport    = "run:export"
	PermTemplateView = "template:view"
	PermUsersList    = "users:list"
	PermUsersUpsert  = "users:bulk_upsert"
	PermUsersRole    = "users:update_role"
	PermAuditView    = "audit:view"
)

// AllPermissions is every permission a route checks.
var AllPermissions = []string{
	PermRunCreate,
	PermRunView,
	PermRunViewAll,
	PermRunExport,
	PermTemplateView,
	PermUsersList,
	PermUsersUpsert,
	PermUsersRole,
	PermAuditView,
}

// RolePermissions is the default policy. Teachers see their own runs; viewers (exam cell
// staff) see every run but cannot grade.
var RolePermissions = map[string][]string{
	RoleViewer: {
		PermRunView,
		PermRunViewAll,
		PermRunExport,
		PermTemplateView,
	},
	RoleTeacher: {
		PermRunCreate,
		PermRunView,
		PermRunExport,
		PermTemplateView,
	},
	RoleAdmin: {
		"*", // everything
	},
}

// KnownRole reports whether role appears in the default policy.
func KnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
