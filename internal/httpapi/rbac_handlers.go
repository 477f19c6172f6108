package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/rbac"
)

type roleRequest struct {
	RoleName string `json:"role_name"`
}

type rolePermissionsResponse struct {
	RoleID      string          `json:"role_id"`
	Permissions map[string]bool `json:"permissions"`
}

func (a *API) rbacRoutes(r *mux.Router) {
	manage := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermManageRoles, h) }

	r.HandleFunc("/permissions", a.listPermissionCatalog).Methods(http.MethodGet)
	r.HandleFunc("/roles", a.listRoles).Methods(http.MethodGet)
	r.HandleFunc("/roles", manage(a.createRole)).Methods(http.MethodPost)
	r.HandleFunc("/roles/{id}", a.getRole).Methods(http.MethodGet)
	r.HandleFunc("/roles/{id}", manage(a.renameRole)).Methods(http.MethodPatch)
	r.HandleFunc("/roles/{id}", manage(a.deleteRole)).Methods(http.MethodDelete)
	r.HandleFunc("/roles/{id}/permissions", a.getRolePermissions).Methods(http.MethodGet)
	r.HandleFunc("/roles/{id}/permissions", manage(a.saveRolePermissions)).Methods(http.MethodPut)
}

func (a *API) listPermissionCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rbac.Catalog)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.deps.Roles.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := a.deps.Roles.AddRole(r.Context(), req.RoleName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/roles/"+role.ID, role)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.deps.Roles.GetRole(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) renameRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := a.deps.Roles.RenameRole(r.Context(), pathID(r), req.RoleName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Roles.DeleteRole(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if _, err := a.deps.Roles.GetRole(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	perms, err := a.deps.Roles.Permissions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolePermissionsResponse{RoleID: id, Permissions: perms})
}

func (a *API) saveRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req map[string]bool
	if !decodeBody(w, r, &req) {
		return
	}
	id := pathID(r)
	perms, err := a.deps.Roles.SavePermissions(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolePermissionsResponse{RoleID: id, Permissions: perms})
}
