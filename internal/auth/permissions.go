package auth

// Module is a named functional area subject to independent CRUD permissions.
type Module string

const (
	ModuleDashboard   Module = "dashboard"
	ModuleUsers       Module = "users"
	ModuleRoles       Module = "roles"
	ModuleEnterprises Module = "enterprises"
	ModuleEmployees   Module = "employees"
	ModuleProducts    Module = "products"
	ModuleReports     Module = "reports"
)

// Modules lists every module the permission matrix covers.
var Modules = []Module{
	ModuleDashboard,
	ModuleUsers,
	ModuleRoles,
	ModuleEnterprises,
	ModuleEmployees,
	ModuleProducts,
	ModuleReports,
}

// Valid reports whether the module belongs to the fixed set.
func (m Module) Valid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

// Action is one of the four CRUD verbs. The mapping to permission flags is
// an explicit switch: anything outside the enum denies.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Allows resolves the action against this row's flags. Unknown actions
// deny; they never error in a way that could grant access.
func (p Permission) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionRead:
		return p.CanRead
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// PermissionSet is a role's resolved matrix keyed by module.
type PermissionSet map[Module]Permission

// NewPermissionSet indexes rows by module. Later duplicates win, matching
// the unique (role, module) constraint of the backing store.
func NewPermissionSet(rows []Permission) PermissionSet {
	set := make(PermissionSet, len(rows))
	for _, row := range rows {
		set[row.Module] = row
	}
	return set
}

// Allows answers the module/action question for a non-superuser role.
// A missing row is a hard deny.
func (ps PermissionSet) Allows(module Module, action Action) bool {
	row, ok := ps[module]
	if !ok {
		return false
	}
	return row.Allows(action)
}

// Can is the single authorization predicate: superuser roles bypass the
// table unconditionally, everyone else goes through the row lookup.
func Can(role Role, set PermissionSet, module Module, action Action) bool {
	if role.Superuser {
		return true
	}
	if !module.Valid() {
		return false
	}
	return set.Allows(module, action)
}
