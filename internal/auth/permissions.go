package auth

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// Permission actions.
const (
	PermView   = "view"
	PermManage = "manage"
	PermAdmin  = "admin"
)

// rolePerms maps role → action → allowed. Store managers run restocks and
// supplier workflows; only admins change settings, templates and the license.
var rolePerms = map[string]map[string]bool{
	RoleAdmin:   {PermView: true, PermManage: true, PermAdmin: true},
	RoleManager: {PermView: true, PermManage: true},
	RoleViewer:  {PermView: true},
}

// Can reports whether role may perform action.
func Can(role, action string) bool {
	return rolePerms[role][action]
}
