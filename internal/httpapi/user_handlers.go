package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/rbac"
)

type statusRequest struct {
	Status org.Status `json:"status"`
}

type passwordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
}

func (a *API) userRoutes(r *mux.Router) {
	manage := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermManageUsers, h) }

	r.HandleFunc("/users", a.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", manage(a.createUser)).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", a.getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", manage(a.updateUser)).Methods(http.MethodPatch)
	r.HandleFunc("/users/{id}", manage(a.deleteUser)).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/status/toggle", manage(a.toggleUserStatus)).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/status", manage(a.setUserStatus)).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}/placement", manage(a.placeUser)).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}/password", manage(a.resetPassword)).Methods(http.MethodPut)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []org.User
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("department_id") != "":
		users, err = a.deps.Org.UsersByDepartment(r.Context(), q.Get("department_id"))
	case q.Get("q") != "":
		users, err = a.deps.Org.SearchUsers(r.Context(), q.Get("q"))
	default:
		users, err = a.deps.Org.ListUsers(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req org.NewUser
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.deps.Org.AddUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/users/"+u.ID, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.deps.Org.GetUser(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req org.UserUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.deps.Org.UpdateUser(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Org.DeleteUser(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) toggleUserStatus(w http.ResponseWriter, r *http.Request) {
	u, err := a.deps.Org.ToggleStatus(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.recordActivity(r, u.ID, "status_changed", string(u.Status))
	writeJSON(w, http.StatusOK, u)
}

func (a *API) setUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.deps.Org.SetStatus(r.Context(), pathID(r), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.recordActivity(r, u.ID, "status_changed", string(u.Status))
	writeJSON(w, http.StatusOK, u)
}

func (a *API) placeUser(w http.ResponseWriter, r *http.Request) {
	var req org.Chain
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.deps.Org.PlaceUser(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := pathID(r)
	if err := a.deps.Org.ResetPassword(r.Context(), id, req.Password, req.Confirm); err != nil {
		writeServiceError(w, r, err)
		return
	}
	detail := ""
	if actor, ok := auth.UserIDFromContext(r.Context()); ok {
		detail = "by " + actor
	}
	a.recordActivity(r, id, "password_reset", detail)
	noContent(w)
}
