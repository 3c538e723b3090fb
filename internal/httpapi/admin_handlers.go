package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"entadmin.io/internal/audit"
	"entadmin.io/internal/auth"
)

type createUserRequest struct {
	EnterpriseID string `json:"enterprise_id"`
	RoleID       string `json:"role_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Status       string `json:"status"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Status   *string `json:"status"`
	RoleID   *string `json:"role_id"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type permissionEntry struct {
	Module    string `json:"module"`
	CanCreate bool   `json:"can_create"`
	CanRead   bool   `json:"can_read"`
	CanUpdate bool   `json:"can_update"`
	CanDelete bool   `json:"can_delete"`
}

type updateRolePermissionsRequest struct {
	Permissions []permissionEntry `json:"permissions"`
}

type createEnterpriseRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	ContactInfo string `json:"contact_info"`
}

type updateEnterpriseRequest struct {
	Name        *string `json:"name"`
	Location    *string `json:"location"`
	ContactInfo *string `json:"contact_info"`
	Status      *string `json:"status"`
}

// --- dashboard ---

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	counts, err := a.auth.DashboardCounts(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// --- users ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleUsers, auth.ActionRead) {
			return
		}
		users, err := a.auth.ListUsers(r.Context(), r.URL.Query().Get("enterprise_id"))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.ModuleUsers, auth.ActionCreate) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.CreateUser(r.Context(), req.EnterpriseID, req.RoleID, req.Username, req.Email, req.Password, req.Status)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.create", map[string]any{
			"target_user_id": user.ID,
			"email":          user.Email,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r.URL.Path, "/v1/users/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleUsers, auth.ActionRead) {
			return
		}
		user, err := a.auth.GetUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.ModuleUsers, auth.ActionUpdate) {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Status:   req.Status,
			RoleID:   req.RoleID,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.update", map[string]any{
			"target_user_id": user.ID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.ModuleUsers, auth.ActionDelete) {
			return
		}
		if err := a.auth.DeleteUser(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.delete", map[string]any{
			"target_user_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- roles ---

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionRead) {
			return
		}
		roles, err := a.auth.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionCreate) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionRead) {
			return
		}
		role, err := a.auth.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionUpdate) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.UpdateRole(r.Context(), roleID, auth.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{
			"role_id": role.ID,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionDelete) {
			return
		}
		if err := a.auth.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{
			"role_id": roleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionRead) {
			return
		}
		perms, err := a.auth.PermissionsForRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.ModuleRoles, auth.ActionUpdate) {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entries := make([]auth.Permission, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			entries = append(entries, auth.Permission{
				Module:    auth.Module(p.Module),
				CanCreate: p.CanCreate,
				CanRead:   p.CanRead,
				CanUpdate: p.CanUpdate,
				CanDelete: p.CanDelete,
			})
		}
		if err := a.auth.ReplaceRolePermissions(r.Context(), roleID, entries); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
			"role_id": roleID,
			"count":   len(entries),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// --- enterprises ---

func (a *API) handleEnterprises(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleEnterprises, auth.ActionRead) {
			return
		}
		ents, err := a.auth.ListEnterprises(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enterprises": ents})
	case http.MethodPost:
		if !a.ensurePermission(w, r, auth.ModuleEnterprises, auth.ActionCreate) {
			return
		}
		var req createEnterpriseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ent, err := a.auth.CreateEnterprise(r.Context(), req.Name, req.Location, req.ContactInfo)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.enterprise.create", map[string]any{
			"enterprise_id": ent.ID,
			"name":          ent.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/enterprises/%s", ent.ID))
		writeJSON(w, http.StatusCreated, ent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEnterpriseResource(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r.URL.Path, "/v1/enterprises/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, auth.ModuleEnterprises, auth.ActionRead) {
			return
		}
		ent, err := a.auth.GetEnterprise(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ent)
	case http.MethodPut:
		if !a.ensurePermission(w, r, auth.ModuleEnterprises, auth.ActionUpdate) {
			return
		}
		var req updateEnterpriseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ent, err := a.auth.UpdateEnterprise(r.Context(), id, auth.EnterpriseUpdate{
			Name:        req.Name,
			Location:    req.Location,
			ContactInfo: req.ContactInfo,
			Status:      req.Status,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.enterprise.update", map[string]any{
			"enterprise_id": ent.ID,
		})
		writeJSON(w, http.StatusOK, ent)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, auth.ModuleEnterprises, auth.ActionDelete) {
			return
		}
		if err := a.auth.DeleteEnterprise(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.enterprise.delete", map[string]any{
			"enterprise_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// resourceID extracts the single path segment after the prefix, or "".
func resourceID(path, prefix string) string {
	id := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
