package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the authorization core.
// Implementations must serialize per-row login attempt updates; the service
// assumes RecordLoginFailure is a single atomic read-modify-write.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, enterpriseID string) ([]User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, userID string) error

	// RecordLoginFailure increments the failed-attempt counter and, when the
	// counter reaches threshold, stamps lockedUntil. One atomic update;
	// returns the user row as written.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockedUntil time.Time) (User, error)
	// RecordLoginSuccess resets the counter, clears any lock and records the
	// login time.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error

	// SetResetToken stores the reset token digest and expiry, overwriting
	// any outstanding token.
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// GetUserByResetToken matches the token digest only while the stored
	// expiry is still in the future.
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (User, error)
	// ConsumeResetToken sets the new password hash, clears the reset token
	// and returns the lockout state to open, all in one update.
	ConsumeResetToken(ctx context.Context, userID, passwordHash string) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	// ReplaceRolePermissions swaps the role's full permission set in one
	// transaction: on failure the previous set stays in effect.
	ReplaceRolePermissions(ctx context.Context, roleID string, perms []Permission) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	CreateEnterprise(ctx context.Context, ent *Enterprise) error
	GetEnterprise(ctx context.Context, id string) (Enterprise, error)
	ListEnterprises(ctx context.Context) ([]Enterprise, error)
	UpdateEnterprise(ctx context.Context, id string, upd EnterpriseUpdate) (Enterprise, error)
	DeleteEnterprise(ctx context.Context, id string) error

	DashboardCounts(ctx context.Context) (DashboardCounts, error)
}
