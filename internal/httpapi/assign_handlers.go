package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/org"
	"loanadmin.org/internal/rbac"
)

type moduleAccessRequest struct {
	OrganizationID string   `json:"organization_id"`
	BranchID       string   `json:"branch_id"`
	Modules        []string `json:"modules"`
}

type modulesRequest struct {
	Modules []string `json:"modules"`
}

func (a *API) assignRoutes(r *mux.Router) {
	manage := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermManageOrganization, h) }

	r.HandleFunc("/assignments", a.listAssignments).Methods(http.MethodGet)
	r.HandleFunc("/assignments", manage(a.createAssignment)).Methods(http.MethodPost)
	r.HandleFunc("/assignments/{id}", manage(a.deleteAssignment)).Methods(http.MethodDelete)

	r.HandleFunc("/modules", a.listModules).Methods(http.MethodGet)
	r.HandleFunc("/module-access", a.listModuleAccess).Methods(http.MethodGet)
	r.HandleFunc("/module-access", manage(a.grantModuleAccess)).Methods(http.MethodPost)
	r.HandleFunc("/module-access/{id}", manage(a.updateModuleAccess)).Methods(http.MethodPut)
	r.HandleFunc("/module-access/{id}", manage(a.revokeModuleAccess)).Methods(http.MethodDelete)

	r.HandleFunc("/snapshots/{id}/refresh", manage(a.refreshSnapshot)).Methods(http.MethodPost)
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Org.ListAssignments(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createAssignment(w http.ResponseWriter, r *http.Request) {
	var req org.Chain
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := a.deps.Org.AssignStaff(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/assignments/"+created.ID, created)
}

func (a *API) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.RemoveAssignment(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) listModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, org.Modules())
}

func (a *API) listModuleAccess(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Org.ListModuleAccess(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) grantModuleAccess(w http.ResponseWriter, r *http.Request) {
	var req moduleAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := a.deps.Org.GrantModuleAccess(r.Context(), req.OrganizationID, req.BranchID, req.Modules)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/module-access/"+created.ID, created)
}

func (a *API) updateModuleAccess(w http.ResponseWriter, r *http.Request) {
	var req modulesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := a.deps.Org.UpdateModuleAccess(r.Context(), pathID(r), req.Modules)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) revokeModuleAccess(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.RevokeModuleAccess(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) refreshSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := a.deps.Org.RefreshSnapshot(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
