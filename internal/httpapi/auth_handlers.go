package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/audit"
	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/org"
)

type tokenRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      org.User  `json:"user"`
}

func (a *API) authRoutes(r *mux.Router) {
	r.HandleFunc("/auth/token", a.handleAuthToken).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", a.handleAuthMe).Methods(http.MethodGet)
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !a.authEnabled() {
		writeError(w, r, http.StatusServiceUnavailable, "token issuing is not configured")
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "login and password are required")
		return
	}

	user, err := a.deps.Org.Authenticate(r.Context(), login, req.Password)
	attempt := audit.LoginAttempt{Username: login, UserID: user.ID, Success: err == nil, RemoteAddr: clientIP(r)}
	if err != nil {
		attempt.Reason = err.Error()
	}
	a.recordLoginAttempt(r, attempt)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="loanadmin"`)
		}
		writeServiceError(w, r, err)
		return
	}

	token, expiresAt, err := a.deps.Issuer.Issue(user.ID, user.Username, user.RoleID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	a.recordActivity(r, user.ID, "login", "")
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    user.ID,
		"username":   user.Username,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

func (a *API) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     principal.UserID,
		"username":    principal.Username,
		"role_id":     principal.RoleID,
		"permissions": principal.PermissionKeys(),
	})
}

func (a *API) recordLoginAttempt(r *http.Request, attempt audit.LoginAttempt) {
	if a.deps.History == nil {
		return
	}
	if _, err := a.deps.History.RecordLoginAttempt(r.Context(), attempt); err != nil {
		obs.Logger().WithError(err).Warn("record login attempt")
	}
}

func (a *API) recordActivity(r *http.Request, userID, action, detail string) {
	if a.deps.History == nil {
		return
	}
	if _, err := a.deps.History.RecordActivity(r.Context(), userID, action, detail); err != nil {
		obs.Logger().WithError(err).Warn("record user activity")
	}
}
