package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/rbac"
	"loanadmin.org/internal/workflow"
)

type moveRequest struct {
	Direction int `json:"direction"`
}

func (a *API) workflowRoutes(r *mux.Router) {
	manage := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermManageWorkflow, h) }

	r.HandleFunc("/workflow/steps", a.listSteps).Methods(http.MethodGet)
	r.HandleFunc("/workflow/steps", manage(a.createStep)).Methods(http.MethodPost)
	r.HandleFunc("/workflow/steps/{id}", a.getStep).Methods(http.MethodGet)
	r.HandleFunc("/workflow/steps/{id}", manage(a.updateStep)).Methods(http.MethodPatch)
	r.HandleFunc("/workflow/steps/{id}", manage(a.deleteStep)).Methods(http.MethodDelete)
	r.HandleFunc("/workflow/steps/{id}/move", manage(a.moveStep)).Methods(http.MethodPost)

	r.HandleFunc("/workflow/escalations", a.listEscalations).Methods(http.MethodGet)
	r.HandleFunc("/workflow/escalations", manage(a.createEscalation)).Methods(http.MethodPost)
	r.HandleFunc("/workflow/escalations/{id}", manage(a.deleteEscalation)).Methods(http.MethodDelete)

	r.HandleFunc("/workflow/time-limits", a.getTimeLimits).Methods(http.MethodGet)
	r.HandleFunc("/workflow/time-limits", manage(a.saveTimeLimits)).Methods(http.MethodPut)
	r.HandleFunc("/workflow/time-limits/{id}", manage(a.setTimeLimit)).Methods(http.MethodPut)

	r.HandleFunc("/workflow/step-assignments", a.getStepAssignments).Methods(http.MethodGet)
	r.HandleFunc("/workflow/step-assignments", manage(a.saveStepAssignments)).Methods(http.MethodPut)
}

func (a *API) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := a.deps.Workflow.ListSteps(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (a *API) createStep(w http.ResponseWriter, r *http.Request) {
	var req workflow.Step
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := a.deps.Workflow.AddStep(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/workflow/steps/"+st.ID, st)
}

func (a *API) getStep(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Workflow.GetStep(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) updateStep(w http.ResponseWriter, r *http.Request) {
	var req workflow.StepUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := a.deps.Workflow.UpdateStep(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// deleteStep also drops the step's escalations, time limit and role assignment.
func (a *API) deleteStep(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Workflow.DeleteStep(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) moveStep(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	steps, err := a.deps.Workflow.MoveStep(r.Context(), pathID(r), req.Direction)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (a *API) listEscalations(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Workflow.ListEscalations(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createEscalation(w http.ResponseWriter, r *http.Request) {
	var req workflow.Escalation
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := a.deps.Workflow.AddEscalation(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/workflow/escalations/"+e.ID, e)
}

func (a *API) deleteEscalation(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Workflow.DeleteEscalation(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) getTimeLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := a.deps.Workflow.TimeLimits(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (a *API) saveTimeLimits(w http.ResponseWriter, r *http.Request) {
	var req map[string]workflow.TimeLimit
	if !decodeBody(w, r, &req) {
		return
	}
	limits, err := a.deps.Workflow.SaveTimeLimits(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (a *API) setTimeLimit(w http.ResponseWriter, r *http.Request) {
	var req workflow.TimeLimit
	if !decodeBody(w, r, &req) {
		return
	}
	limits, err := a.deps.Workflow.SetTimeLimit(r.Context(), pathID(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (a *API) getStepAssignments(w http.ResponseWriter, r *http.Request) {
	m, err := a.deps.Workflow.StepAssignments(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) saveStepAssignments(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := a.deps.Workflow.SaveStepAssignments(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
