package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/org"
	"loanadmin.org/internal/rbac"
)

func (a *API) orgRoutes(r *mux.Router) {
	manage := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermManageOrganization, h) }

	r.HandleFunc("/organizations", a.listOrganizations).Methods(http.MethodGet)
	r.HandleFunc("/organizations", manage(a.createOrganization)).Methods(http.MethodPost)
	r.HandleFunc("/organizations/{id}", a.getOrganization).Methods(http.MethodGet)
	r.HandleFunc("/organizations/{id}", manage(a.updateOrganization)).Methods(http.MethodPatch)
	r.HandleFunc("/organizations/{id}", manage(a.deleteOrganization)).Methods(http.MethodDelete)
	r.HandleFunc("/organizations/{id}/branches", a.organizationBranches).Methods(http.MethodGet)
	r.HandleFunc("/organizations/{id}/departments", a.organizationDepartments).Methods(http.MethodGet)

	r.HandleFunc("/branches", a.listBranches).Methods(http.MethodGet)
	r.HandleFunc("/branches", manage(a.createBranch)).Methods(http.MethodPost)
	r.HandleFunc("/branches/{id}", a.getBranch).Methods(http.MethodGet)
	r.HandleFunc("/branches/{id}", manage(a.updateBranch)).Methods(http.MethodPatch)
	r.HandleFunc("/branches/{id}", manage(a.deleteBranch)).Methods(http.MethodDelete)
	r.HandleFunc("/branches/{id}/departments", a.branchDepartments).Methods(http.MethodGet)

	r.HandleFunc("/departments", a.listDepartments).Methods(http.MethodGet)
	r.HandleFunc("/departments", manage(a.createDepartment)).Methods(http.MethodPost)
	r.HandleFunc("/departments/{id}", a.getDepartment).Methods(http.MethodGet)
	r.HandleFunc("/departments/{id}", manage(a.updateDepartment)).Methods(http.MethodPatch)
	r.HandleFunc("/departments/{id}", manage(a.deleteDepartment)).Methods(http.MethodDelete)

	r.HandleFunc("/placement/options", a.placementOptions).Methods(http.MethodGet)
	r.HandleFunc("/summary", a.summary).Methods(http.MethodGet)
}

// Organizations

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	var (
		orgs []org.Organization
		err  error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		orgs, err = a.deps.Org.SearchOrganizations(r.Context(), q)
	} else {
		orgs, err = a.deps.Org.ListOrganizations(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req org.Organization
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := a.deps.Org.AddOrganization(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/organizations/"+created.ID, created)
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	o, err := a.deps.Org.GetOrganization(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req org.OrganizationUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := a.deps.Org.UpdateOrganization(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.DeleteOrganization(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) organizationBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := a.deps.Org.BranchesByOrganization(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (a *API) organizationDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := a.deps.Org.DepartmentsByOrganization(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depts)
}

// Branches

func (a *API) listBranches(w http.ResponseWriter, r *http.Request) {
	var (
		branches []org.Branch
		err      error
	)
	if orgID := r.URL.Query().Get("organization_id"); orgID != "" {
		branches, err = a.deps.Org.BranchesByOrganization(r.Context(), orgID)
	} else {
		branches, err = a.deps.Org.ListBranches(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (a *API) createBranch(w http.ResponseWriter, r *http.Request) {
	var req org.Branch
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := a.deps.Org.AddBranch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/branches/"+created.ID, created)
}

func (a *API) getBranch(w http.ResponseWriter, r *http.Request) {
	b, err := a.deps.Org.GetBranch(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) updateBranch(w http.ResponseWriter, r *http.Request) {
	var req org.BranchUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := a.deps.Org.UpdateBranch(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) deleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.DeleteBranch(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) branchDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := a.deps.Org.DepartmentsByBranch(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depts)
}

// Departments

func (a *API) listDepartments(w http.ResponseWriter, r *http.Request) {
	var (
		depts []org.Department
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("branch_id") != "":
		depts, err = a.deps.Org.DepartmentsByBranch(r.Context(), q.Get("branch_id"))
	case q.Get("organization_id") != "":
		depts, err = a.deps.Org.DepartmentsByOrganization(r.Context(), q.Get("organization_id"))
	default:
		depts, err = a.deps.Org.ListDepartments(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depts)
}

func (a *API) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req org.Department
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := a.deps.Org.AddDepartment(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/departments/"+created.ID, created)
}

func (a *API) getDepartment(w http.ResponseWriter, r *http.Request) {
	d, err := a.deps.Org.GetDepartment(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) updateDepartment(w http.ResponseWriter, r *http.Request) {
	var req org.DepartmentUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := a.deps.Org.UpdateDepartment(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.DeleteDepartment(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

// placementOptions replays the query's selections through the placement
// selector and returns every level with its options. A selection that is not
// among its level's options is rejected.
func (a *API) placementOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	withStaff, _ := strconv.ParseBool(q.Get("staff"))
	sel, err := a.deps.Org.NewPlacementSelector(r.Context(), withStaff)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	path := []string{q.Get("organization_id"), q.Get("branch_id"), q.Get("department_id")}
	if withStaff {
		path = append(path, q.Get("staff_id"))
	}
	if err := sel.SelectPath(r.Context(), path...); err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := map[string]any{"levels": sel.State(), "complete": true}
	if err := sel.Validate(); err != nil {
		resp["complete"] = false
		resp["missing"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) summary(w http.ResponseWriter, r *http.Request) {
	s, err := a.deps.Org.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
