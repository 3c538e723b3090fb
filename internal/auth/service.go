package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultResetTokenTTL    = time.Hour

	resetTokenBytes = 32
)

// Principal is a user with its role and resolved permission set.
type Principal struct {
	User        User
	Role        Role
	Permissions PermissionSet
}

// Allowed answers the module/action question for this principal.
func (p Principal) Allowed(module Module, action Action) bool {
	return Can(p.Role, p.Permissions, module, action)
}

// Service composes the credential store, lockout tracker, token issuer and
// permission table into the login, reset and per-request guard operations.
type Service struct {
	store  Store
	tokens *TokenIssuer
	now    func() time.Time

	lockoutThreshold int
	lockoutDuration  time.Duration
	resetTokenTTL    time.Duration
	bcryptCost       int

	lockoutHook func(User)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLockoutPolicy sets the failed-attempt threshold and lock duration.
func WithLockoutPolicy(threshold int, duration time.Duration) ServiceOption {
	return func(s *Service) {
		if threshold > 0 {
			s.lockoutThreshold = threshold
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

// WithResetTokenTTL sets the reset token lifetime.
func WithResetTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTokenTTL = ttl
		}
	}
}

// WithBcryptCost sets the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithLockoutHook installs a callback invoked once, with the stored user
// row, at the moment repeated failures trip the lock.
func WithLockoutHook(hook func(User)) ServiceOption {
	return func(s *Service) {
		s.lockoutHook = hook
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the authorization core.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	s := &Service{
		store:            store,
		tokens:           tokens,
		now:              time.Now,
		lockoutThreshold: defaultLockoutThreshold,
		lockoutDuration:  defaultLockoutDuration,
		resetTokenTTL:    defaultResetTokenTTL,
		bcryptCost:       DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginResult carries the session token and the principal summary returned
// on a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
	Role      Role      `json:"role"`
}

// Login authenticates credentials, drives the lockout state machine and
// mints a session token.
//
// The lock check happens before password verification: a locked account
// neither evaluates the password nor accumulates further failed attempts.
// Crossing the threshold on this attempt still reports invalid credentials;
// only the next attempt surfaces the lock.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	now := s.now().UTC()
	switch state := user.Access(now); state.Kind {
	case AccessLockedUntil:
		return LoginResult{}, ErrAccountLocked
	case AccessSuspended:
		if state.Status == StatusLocked {
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrAccountInactive
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		lockedUntil := now.Add(s.lockoutDuration)
		updated, err := s.store.RecordLoginFailure(ctx, user.ID, s.lockoutThreshold, lockedUntil)
		if err != nil {
			return LoginResult{}, err
		}
		if s.lockoutHook != nil && updated.FailedLoginAttempts == s.lockoutThreshold {
			s.lockoutHook(updated)
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return LoginResult{}, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	principal, err := s.loadPrincipal(ctx, user)
	if err != nil {
		return LoginResult{}, err
	}
	token, expiresAt, err := s.tokens.Issue(&principal.User)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      principal.User,
		Role:      principal.Role,
	}, nil
}

// Authenticate verifies a bearer token and re-fetches the principal. The
// embedded claims are never trusted for current account state: a user
// locked or deactivated after issuance is rejected here, and a deleted
// user comes back unauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	switch state := user.Access(s.now().UTC()); state.Kind {
	case AccessLockedUntil:
		return Principal{}, ErrAccountLocked
	case AccessSuspended:
		if state.Status == StatusLocked {
			return Principal{}, ErrAccountLocked
		}
		return Principal{}, ErrAccountInactive
	}
	return s.loadPrincipal(ctx, user)
}

// Authorize rejects with ErrForbidden, naming the module and action, unless
// the principal may perform it.
func (s *Service) Authorize(principal Principal, module Module, action Action) error {
	if principal.Allowed(module, action) {
		return nil
	}
	return fmt.Errorf("%w: %s.%s", ErrForbidden, module, action)
}

func (s *Service) loadPrincipal(ctx context.Context, user User) (Principal, error) {
	role, err := s.store.GetRole(ctx, user.RoleID)
	if err != nil {
		return Principal{}, err
	}
	rows, err := s.store.PermissionsForRole(ctx, role.ID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Role: role, Permissions: NewPermissionSet(rows)}, nil
}

// RequestPasswordReset generates and stores a single-use reset token for
// the account, overwriting any outstanding one. An unknown email returns
// ("", nil): the caller responds identically either way, delivery of the
// returned token is the mailer's job.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", nil
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	token, digest, err := newResetToken()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().UTC().Add(s.resetTokenTTL)
	if err := s.store.SetResetToken(ctx, user.ID, digest, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// ConfirmPasswordReset exchanges a valid reset token for a password change.
// The token digest must match and the stored expiry must still be in the
// future; the caller cannot tell which condition failed. Success clears the
// token and lifts any lockout.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	user, err := s.store.GetUserByResetToken(ctx, hashResetToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.store.ConsumeResetToken(ctx, user.ID, hash)
}

func newResetToken() (token, digest string, err error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, hashResetToken(token), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateUser validates input, enforces the password policy and stores the
// user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, enterpriseID, roleID, username, email, password, status string) (User, error) {
	enterpriseID = strings.TrimSpace(enterpriseID)
	roleID = strings.TrimSpace(roleID)
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if enterpriseID == "" || roleID == "" {
		return User{}, fmt.Errorf("%w: enterprise_id and role_id are required", ErrInvalidInput)
	}
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return User{}, err
	}
	if err := ValidatePasswordPolicy(password); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		EnterpriseID: enterpriseID,
		RoleID:       roleID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Status:       status,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUser applies a partial user mutation, hashing any new password.
func (s *Service) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		upd.Username = &username
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return User{}, err
		}
		upd.Status = &status
	}
	if upd.Password != nil {
		if err := ValidatePasswordPolicy(*upd.Password); err != nil {
			return User{}, err
		}
		hash, err := HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return s.store.UpdateUser(ctx, userID, upd)
}

// DeleteUser removes a user. The bootstrap system user may not be deleted.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.System {
		return fmt.Errorf("%w: system user cannot be deleted", ErrForbidden)
	}
	return s.store.DeleteUser(ctx, userID)
}

// CreateRole stores a new non-system role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreateRole(ctx, &role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole mutates a role. System roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if role.SystemRole {
		return Role{}, fmt.Errorf("%w: system role cannot be modified", ErrForbidden)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, roleID, upd)
}

// DeleteRole removes a role. System roles are protected, and a role still
// assigned to users fails with ErrConflict from the store.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.SystemRole {
		return fmt.Errorf("%w: system role cannot be deleted", ErrForbidden)
	}
	return s.store.DeleteRole(ctx, roleID)
}

// GetRole loads a role by id.
func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	return s.store.GetRole(ctx, strings.TrimSpace(roleID))
}

// ListRoles lists every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	return s.store.GetUser(ctx, strings.TrimSpace(userID))
}

// ListUsers lists users, optionally scoped to an enterprise.
func (s *Service) ListUsers(ctx context.Context, enterpriseID string) ([]User, error) {
	return s.store.ListUsers(ctx, strings.TrimSpace(enterpriseID))
}

// PermissionsForRole returns the stored permission rows for a role.
func (s *Service) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	return s.store.PermissionsForRole(ctx, strings.TrimSpace(roleID))
}

// ReplaceRolePermissions atomically swaps a role's full permission set.
// Attempting to touch a system role is an authorization failure, not a
// validation one.
func (s *Service) ReplaceRolePermissions(ctx context.Context, roleID string, entries []Permission) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.SystemRole {
		return fmt.Errorf("%w: system role permissions cannot be modified", ErrForbidden)
	}
	seen := make(map[Module]struct{}, len(entries))
	perms := make([]Permission, 0, len(entries))
	for _, entry := range entries {
		if !entry.Module.Valid() {
			return fmt.Errorf("%w: unknown module %q", ErrInvalidInput, entry.Module)
		}
		if _, dup := seen[entry.Module]; dup {
			return fmt.Errorf("%w: duplicate module %q", ErrInvalidInput, entry.Module)
		}
		seen[entry.Module] = struct{}{}
		entry.RoleID = roleID
		perms = append(perms, entry)
	}
	return s.store.ReplaceRolePermissions(ctx, roleID, perms)
}

// CreateEnterprise stores a new enterprise.
func (s *Service) CreateEnterprise(ctx context.Context, name, location, contactInfo string) (Enterprise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Enterprise{}, fmt.Errorf("%w: enterprise name is required", ErrInvalidInput)
	}
	ent := Enterprise{
		Name:        name,
		Location:    strings.TrimSpace(location),
		ContactInfo: strings.TrimSpace(contactInfo),
		Status:      StatusActive,
	}
	if err := s.store.CreateEnterprise(ctx, &ent); err != nil {
		return Enterprise{}, err
	}
	return ent, nil
}

// GetEnterprise loads an enterprise by id.
func (s *Service) GetEnterprise(ctx context.Context, id string) (Enterprise, error) {
	return s.store.GetEnterprise(ctx, strings.TrimSpace(id))
}

// ListEnterprises lists every enterprise.
func (s *Service) ListEnterprises(ctx context.Context) ([]Enterprise, error) {
	return s.store.ListEnterprises(ctx)
}

// UpdateEnterprise applies a partial enterprise mutation.
func (s *Service) UpdateEnterprise(ctx context.Context, id string, upd EnterpriseUpdate) (Enterprise, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Enterprise{}, fmt.Errorf("%w: enterprise_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Enterprise{}, fmt.Errorf("%w: enterprise name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return Enterprise{}, err
		}
		upd.Status = &status
	}
	return s.store.UpdateEnterprise(ctx, id, upd)
}

// DeleteEnterprise removes an enterprise; dependents surface as ErrConflict
// from the store.
func (s *Service) DeleteEnterprise(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: enterprise_id is required", ErrInvalidInput)
	}
	return s.store.DeleteEnterprise(ctx, id)
}

// DashboardCounts returns record counts for the dashboard summary.
func (s *Service) DashboardCounts(ctx context.Context) (DashboardCounts, error) {
	return s.store.DashboardCounts(ctx)
}

func normalizeStatus(status string) (string, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		return StatusActive, nil
	}
	switch status {
	case StatusActive, StatusInactive, StatusLocked:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
}
