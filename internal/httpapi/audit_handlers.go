package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/audit"
	"loanadmin.org/internal/export"
	"loanadmin.org/internal/rbac"
)

const maxTrailLimit = 1000

func (a *API) auditRoutes(r *mux.Router) {
	logs := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermAuditLogs, h) }
	download := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermDownloadDocs, h) }

	r.HandleFunc("/audit/trail", logs(a.listTrail)).Methods(http.MethodGet)
	r.HandleFunc("/audit/login-attempts", logs(a.listLoginAttempts)).Methods(http.MethodGet)
	r.HandleFunc("/audit/activity", logs(a.listActivity)).Methods(http.MethodGet)

	r.HandleFunc("/exports/assignments.xlsx", download(a.exportAssignments)).Methods(http.MethodGet)
	r.HandleFunc("/exports/module-access.xlsx", download(a.exportModuleAccess)).Methods(http.MethodGet)
	r.HandleFunc("/exports/users.xlsx", download(a.exportUsers)).Methods(http.MethodGet)
}

func (a *API) listTrail(w http.ResponseWriter, r *http.Request) {
	if a.deps.Trail == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit trail disabled")
		return
	}
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, maxTrailLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.deps.Trail.List(r.Context(), audit.Filter{
		Collection: q.Get("collection"),
		RecordID:   q.Get("record_id"),
		Actor:      q.Get("actor"),
		Limit:      limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) listLoginAttempts(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, r, http.StatusServiceUnavailable, "activity history disabled")
		return
	}
	items, err := a.deps.History.LoginAttempts(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) listActivity(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, r, http.StatusServiceUnavailable, "activity history disabled")
		return
	}
	items, err := a.deps.History.UserActivity(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Exports

func (a *API) exportAssignments(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Org.ListAssignments(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteAssignments(&buf, items); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendWorkbook(w, "staff-assignments", buf.Bytes())
}

func (a *API) exportModuleAccess(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Org.ListModuleAccess(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteModuleAccess(&buf, items); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendWorkbook(w, "module-access", buf.Bytes())
}

func (a *API) exportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.Org.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	roles, err := a.deps.Roles.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.RoleName
	}
	var buf bytes.Buffer
	if err := export.WriteUsers(&buf, users, func(id string) string { return names[id] }); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendWorkbook(w, "users", buf.Bytes())
}

// sendWorkbook sends a fully rendered workbook as an attachment.
func sendWorkbook(w http.ResponseWriter, name string, body []byte) {
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
