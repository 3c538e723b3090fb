package auth

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusLocked   = "locked"
)

// SuperAdminRoleName is the seed name of the superuser role. Authorization
// decisions key off Role.Superuser, not this string; the name exists for
// seeding and for coarse RequireRole checks.
const SuperAdminRoleName = "Super Admin"

// User is an authenticated identity. Every user belongs to exactly one
// enterprise and holds exactly one role.
type User struct {
	ID                  string     `json:"id"`
	EnterpriseID        string     `json:"enterprise_id"`
	RoleID              string     `json:"role_id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Status              string     `json:"status"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	System              bool       `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role groups per-module permissions. System roles are immutable; a role
// with Superuser set bypasses the permission table entirely.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SystemRole  bool      `json:"system_role"`
	Superuser   bool      `json:"superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is one row of the per-role CRUD matrix, unique per
// (role, module). A missing row means no access to the module.
type Permission struct {
	RoleID    string `json:"role_id"`
	Module    Module `json:"module"`
	CanCreate bool   `json:"can_create"`
	CanRead   bool   `json:"can_read"`
	CanUpdate bool   `json:"can_update"`
	CanDelete bool   `json:"can_delete"`
}

// Enterprise is the tenant boundary scoping users and business data.
type Enterprise struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	ContactInfo string    `json:"contact_info,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccessKind discriminates the unified account access state.
type AccessKind int

const (
	// AccessOpen allows login and token verification to proceed.
	AccessOpen AccessKind = iota
	// AccessLockedUntil is a counter-driven lock that lapses on its own.
	AccessLockedUntil
	// AccessSuspended is an administrative hold (status locked or inactive).
	AccessSuspended
)

// AccessState is the single gate evaluated both at login and on every
// token verification.
type AccessState struct {
	Kind   AccessKind
	Until  time.Time
	Status string
}

// Access derives the access state from the user's status and lock fields.
// Administrative status wins over the transient counter lock; expired
// counter locks clear lazily, simply by no longer being in the future.
func (u *User) Access(now time.Time) AccessState {
	switch u.Status {
	case StatusLocked, StatusInactive:
		return AccessState{Kind: AccessSuspended, Status: u.Status}
	}
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return AccessState{Kind: AccessLockedUntil, Until: *u.LockedUntil, Status: u.Status}
	}
	return AccessState{Kind: AccessOpen, Status: u.Status}
}

// UserUpdate carries optional user mutations.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
	Status   *string
	RoleID   *string
}

// RoleUpdate carries optional role mutations.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// EnterpriseUpdate carries optional enterprise mutations.
type EnterpriseUpdate struct {
	Name        *string
	Location    *string
	ContactInfo *string
	Status      *string
}

// DashboardCounts summarizes managed records for the dashboard module.
type DashboardCounts struct {
	Users       int64 `json:"users"`
	Roles       int64 `json:"roles"`
	Enterprises int64 `json:"enterprises"`
}
