package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"entadmin.io/internal/auth"
)

// memStore is the in-memory auth.Store backing handler tests.
type memStore struct {
	mu          sync.Mutex
	users       map[string]auth.User
	roles       map[string]auth.Role
	perms       map[string][]auth.Permission
	enterprises map[string]auth.Enterprise
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]auth.User),
		roles:       make(map[string]auth.Role),
		perms:       make(map[string][]auth.Permission),
		enterprises: make(map[string]auth.Enterprise),
	}
}

func (m *memStore) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = m.genID("user")
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context, enterpriseID string) ([]auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.User
	for _, u := range m.users {
		if enterpriseID == "" || u.EnterpriseID == enterpriseID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, userID string, upd auth.UserUpdate) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
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
		return auth.ErrNotFound
	}
	delete(m.users, userID)
	return nil
}

func (m *memStore) RecordLoginFailure(_ context.Context, userID string, threshold int, lockedUntil time.Time) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
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
		return auth.ErrNotFound
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
		return auth.ErrNotFound
	}
	hash := tokenHash
	exp := expiresAt
	u.ResetTokenHash = &hash
	u.ResetTokenExpiresAt = &exp
	m.users[userID] = u
	return nil
}

func (m *memStore) GetUserByResetToken(_ context.Context, tokenHash string, now time.Time) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (m *memStore) ConsumeResetToken(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	m.users[userID] = u
	return nil
}

func (m *memStore) CreateRole(_ context.Context, role *auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = m.genID("role")
	}
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	m.roles[role.ID] = *role
	return nil
}

func (m *memStore) GetRole(_ context.Context, id string) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRoles(_ context.Context) ([]auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
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
		return auth.ErrNotFound
	}
	for _, u := range m.users {
		if u.RoleID == roleID {
			return auth.ErrConflict
		}
	}
	delete(m.roles, roleID)
	return nil
}

func (m *memStore) ReplaceRolePermissions(_ context.Context, roleID string, perms []auth.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perms[roleID] = append([]auth.Permission(nil), perms...)
	return nil
}

func (m *memStore) PermissionsForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Permission(nil), m.perms[roleID]...), nil
}

func (m *memStore) CreateEnterprise(_ context.Context, ent *auth.Enterprise) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ent.ID == "" {
		ent.ID = m.genID("ent")
	}
	m.enterprises[ent.ID] = *ent
	return nil
}

func (m *memStore) GetEnterprise(_ context.Context, id string) (auth.Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enterprises[id]
	if !ok {
		return auth.Enterprise{}, auth.ErrNotFound
	}
	return e, nil
}

func (m *memStore) ListEnterprises(_ context.Context) ([]auth.Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Enterprise
	for _, e := range m.enterprises {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) UpdateEnterprise(_ context.Context, id string, upd auth.EnterpriseUpdate) (auth.Enterprise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enterprises[id]
	if !ok {
		return auth.Enterprise{}, auth.ErrNotFound
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
		return auth.ErrNotFound
	}
	for _, u := range m.users {
		if u.EnterpriseID == id {
			return auth.ErrConflict
		}
	}
	delete(m.enterprises, id)
	return nil
}

func (m *memStore) DashboardCounts(_ context.Context) (auth.DashboardCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return auth.DashboardCounts{
		Users:       int64(len(m.users)),
		Roles:       int64(len(m.roles)),
		Enterprises: int64(len(m.enterprises)),
	}, nil
}

var _ auth.Store = (*memStore)(nil)

// fixture holds a wired API with two seeded users: a superuser admin and a
// viewer whose role can only read the users module.
type fixture struct {
	api     *API
	store   *memStore
	handler http.Handler

	adminToken  string
	viewerToken string

	adminID      string
	viewerID     string
	adminRoleID  string
	viewerRoleID string
	enterpriseID string
}

const (
	adminPassword  = "Admin#Pass1"
	viewerPassword = "Viewer#Pass1"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := newMemStore()

	ent := auth.Enterprise{Name: "Initech", Status: auth.StatusActive}
	if err := store.CreateEnterprise(context.Background(), &ent); err != nil {
		t.Fatalf("seed enterprise: %v", err)
	}
	adminRole := auth.Role{Name: auth.SuperAdminRoleName, SystemRole: true, Superuser: true}
	if err := store.CreateRole(context.Background(), &adminRole); err != nil {
		t.Fatalf("seed admin role: %v", err)
	}
	viewerRole := auth.Role{Name: "Viewer"}
	if err := store.CreateRole(context.Background(), &viewerRole); err != nil {
		t.Fatalf("seed viewer role: %v", err)
	}
	if err := store.ReplaceRolePermissions(context.Background(), viewerRole.ID, []auth.Permission{
		{RoleID: viewerRole.ID, Module: auth.ModuleUsers, CanRead: true},
	}); err != nil {
		t.Fatalf("seed permissions: %v", err)
	}

	admin := auth.User{
		EnterpriseID: ent.ID,
		RoleID:       adminRole.ID,
		Username:     "admin",
		Email:        "admin@initech.test",
		PasswordHash: hashFor(t, adminPassword),
		Status:       auth.StatusActive,
		System:       true,
	}
	if err := store.CreateUser(context.Background(), &admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	viewer := auth.User{
		EnterpriseID: ent.ID,
		RoleID:       viewerRole.ID,
		Username:     "viewer",
		Email:        "viewer@initech.test",
		PasswordHash: hashFor(t, viewerPassword),
		Status:       auth.StatusActive,
	}
	if err := store.CreateUser(context.Background(), &viewer); err != nil {
		t.Fatalf("seed viewer: %v", err)
	}

	issuer, err := auth.NewTokenIssuer([]byte("httpapi-test-secret"))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := auth.NewService(store, issuer, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, ReadyProbe{}, "test", opts...)
	f := &fixture{
		api:          api,
		store:        store,
		handler:      api.withAuth(api.mux),
		adminID:      admin.ID,
		viewerID:     viewer.ID,
		adminRoleID:  adminRole.ID,
		viewerRoleID: viewerRole.ID,
		enterpriseID: ent.ID,
	}
	f.adminToken = f.login(t, admin.Email, adminPassword)
	f.viewerToken = f.login(t, viewer.Email, viewerPassword)
	return f
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var result auth.LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login response missing token")
	}
	return result.Token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
