package httpapi

import (
	"errors"
	"net/http"

	"entadmin.io/internal/audit"
	"entadmin.io/internal/auth"
	"entadmin.io/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.ObserveLogin(loginOutcome(err))
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{
			"email":  req.Email,
			"reason": loginOutcome(err),
		})
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	})
	writeJSON(w, http.StatusOK, result)
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountLocked):
		return "locked"
	case errors.Is(err, auth.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}

// handleResetRequest answers identically whether or not the email maps to
// an account, so the endpoint cannot be used to enumerate users.
func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if token != "" {
		a.notifyReset(req.Email, token)
	}
	obs.ObserveReset("requested")
	_ = audit.LogEvent(r.Context(), "auth.reset.requested", map[string]any{
		"email":  req.Email,
		"issued": token != "",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if the account exists, a reset link has been sent",
	})
}

func (a *API) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		obs.ObserveReset("rejected")
		_ = audit.LogEvent(r.Context(), "auth.reset.rejected", nil)
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveReset("confirmed")
	_ = audit.LogEvent(r.Context(), "auth.reset.confirmed", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password updated",
	})
}

// handleMe returns the caller's own identity, role and resolved matrix.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="entadmin"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        principal.User,
		"role":        principal.Role,
		"permissions": principal.Permissions,
	})
}
