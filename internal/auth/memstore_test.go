package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store used by service tests. It mirrors the
// persistence contract closely enough to drive the lockout and reset state
// machines, including the single-update semantics of RecordLoginFailure.
type memStore struct {
	mu          sync.Mutex
	users       map[string]User
	roles       map[string]Role
	perms       map[string][]Permission
	enterprises map[string]Enterprise
	nextID      int

	failReplace error // injected ReplaceRolePermissions failure
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]User),
		roles:       make(map[string]Role),
		perms:       make(map[string][]Permission),
		enterprises: make(map[string]Enterprise),
	}
}

func (m *memStore) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = m.genID("user")
	}
	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return ErrConflict
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context, enterpriseID string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if enterpriseID == "" || u.EnterpriseID == enterpriseID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, userID string, upd UserUpdate) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.RoleID != nil {
		u.RoleID = *upd.RoleID
	}
	m.users[userID] = u
	return u, nil
}

func (m *memStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	delete(m.users, userID)
	return nil
}

func (m *memStore) RecordLoginFailure(_ context.Context, userID string, threshold int, lockedUntil time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := lockedUntil
		u.LockedUntil = &until
	}
	m.users[userID] = u
	return u, nil
}

func (m *memStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	stamp := at
	u.LastLoginAt = &stamp
	m.users[userID] = u
	return nil
}

func (m *memStore) SetResetToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	hash := tokenHash
	exp := expiresAt
	u.ResetTokenHash = &hash
	u.ResetTokenExpiresAt = &exp
	m.users[userID] = u
	return nil
}

func (m *memStore) GetUserByResetToken(_ context.Context, tokenHash string, now time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) ConsumeResetToken(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	m.users[userID] = u
	return nil
}

func (m *memStore) CreateRole(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = m.genID("role")
	}
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return ErrConflict
		}
	}
	m.roles[role.ID] = *role
	return nil
}

func (m *memStore) GetRole(_ context.Context, id string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, roleID string, upd RoleUpdate) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	m.roles[roleID] = r
	return r, nil
}

func (m *memStore) DeleteRole(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		if u.RoleID == roleID {
			return ErrConflict
		}
	}
	delete(m.roles, roleID)
	return nil
}

func (m *memStore) ReplaceRolePermissions(_ context.Context, roleID string, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplace != nil {
		// Transactional contract: a failed replace leaves the old set intact.
		return m.failReplace
	}
	m.perms[roleID] = append([]Permission(nil), perms...)
	return nil
}

func (m *memStore) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Permission(nil), m.perms[roleID]...), nil
}

func (m *memStore) CreateEnterprise(_ context.Context, ent *Enterprise) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ent.ID == "" {
		ent.ID = m.genID("ent")
	}
	m.enterprises[ent.ID] = *ent
	return nil
}

func (m *memStore) GetEnterprise(_ context.Context, id string) (Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enterprises[id]
	if !ok {
		return Enterprise{}, ErrNotFound
	}
	return e, nil
}

func (m *memStore) ListEnterprises(_ context.Context) ([]Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Enterprise
	for _, e := range m.enterprises {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) UpdateEnterprise(_ context.Context, id string, upd EnterpriseUpdate) (Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enterprises[id]
	if !ok {
		return Enterprise{}, ErrNotFound
	}
	if upd.Name != nil {
		e.Name = *upd.Name
	}
	if upd.Location != nil {
		e.Location = *upd.Location
	}
	if upd.ContactInfo != nil {
		e.ContactInfo = *upd.ContactInfo
	}
	if upd.Status != nil {
		e.Status = *upd.Status
	}
	m.enterprises[id] = e
	return e, nil
}

func (m *memStore) DeleteEnterprise(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enterprises[id]; !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		if u.EnterpriseID == id {
			return ErrConflict
		}
	}
	delete(m.enterprises, id)
	return nil
}

func (m *memStore) DashboardCounts(_ context.Context) (DashboardCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DashboardCounts{
		Users:       int64(len(m.users)),
		Roles:       int64(len(m.roles)),
		Enterprises: int64(len(m.enterprises)),
	}, nil
}

var _ Store = (*memStore)(nil)
