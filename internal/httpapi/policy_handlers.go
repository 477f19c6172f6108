package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/policy"
	"loanadmin.org/internal/rbac"
)

type loanProductRequest struct {
	Name string `json:"name"`
}

type loanCheckResponse struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}

// Policy updates decode the body over the current value, so omitted fields
// keep their stored values.
func (a *API) policyRoutes(r *mux.Router) {
	edit := func(h http.HandlerFunc) http.HandlerFunc { return a.require(rbac.PermEditPolicies, h) }

	r.HandleFunc("/policies/loan", a.getLoanPolicy).Methods(http.MethodGet)
	r.HandleFunc("/policies/loan", edit(a.saveLoanPolicy)).Methods(http.MethodPut)
	r.HandleFunc("/policies/loan/check", a.checkLoan).Methods(http.MethodPost)

	r.HandleFunc("/policies/security", edit(a.getSecuritySettings)).Methods(http.MethodGet)
	r.HandleFunc("/policies/security", edit(a.saveSecuritySettings)).Methods(http.MethodPut)
	r.HandleFunc("/policies/security/token", edit(a.generateAPIToken)).Methods(http.MethodPost)
	r.HandleFunc("/policies/security/token", edit(a.revokeAPIToken)).Methods(http.MethodDelete)

	r.HandleFunc("/policies/repayment", a.getRepaymentRules).Methods(http.MethodGet)
	r.HandleFunc("/policies/repayment", edit(a.saveRepaymentRules)).Methods(http.MethodPut)

	r.HandleFunc("/policies/credit-scoring", a.getCreditScoring).Methods(http.MethodGet)
	r.HandleFunc("/policies/credit-scoring", edit(a.saveCreditScoring)).Methods(http.MethodPut)

	r.HandleFunc("/loan-products", a.listLoanProducts).Methods(http.MethodGet)
	r.HandleFunc("/loan-products", edit(a.createLoanProduct)).Methods(http.MethodPost)
	r.HandleFunc("/loan-products/{id}", a.getLoanProduct).Methods(http.MethodGet)
	r.HandleFunc("/loan-products/{id}", edit(a.renameLoanProduct)).Methods(http.MethodPatch)
	r.HandleFunc("/loan-products/{id}", edit(a.deleteLoanProduct)).Methods(http.MethodDelete)
}

func (a *API) getLoanPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := a.deps.Policy.LoanPolicy(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) saveLoanPolicy(w http.ResponseWriter, r *http.Request) {
	cur, err := a.deps.Policy.LoanPolicy(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !decodeBody(w, r, &cur) {
		return
	}
	saved, err := a.deps.Policy.SaveLoanPolicy(r.Context(), cur)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) checkLoan(w http.ResponseWriter, r *http.Request) {
	var req policy.LoanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := a.deps.Policy.LoanPolicy(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	reasons := p.Check(req)
	if reasons == nil {
		reasons = []string{}
	}
	writeJSON(w, http.StatusOK, loanCheckResponse{Eligible: len(reasons) == 0, Reasons: reasons})
}

// getSecuritySettings hides the API token; it is only shown once, when generated.
func (a *API) getSecuritySettings(w http.ResponseWriter, r *http.Request) {
	s, err := a.deps.Policy.SecuritySettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskToken(s))
}

func (a *API) saveSecuritySettings(w http.ResponseWriter, r *http.Request) {
	cur, err := a.deps.Policy.SecuritySettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !decodeBody(w, r, &cur) {
		return
	}
	saved, err := a.deps.Policy.SaveSecuritySettings(r.Context(), cur)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskToken(saved))
}

func maskToken(s policy.SecuritySettings) policy.SecuritySettings {
	if s.APIToken.Token != "" {
		s.APIToken.Token = "********"
	}
	return s
}

func (a *API) generateAPIToken(w http.ResponseWriter, r *http.Request) {
	tok, err := a.deps.Policy.GenerateAPIToken(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (a *API) revokeAPIToken(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Policy.RevokeAPIToken(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}

func (a *API) getRepaymentRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.deps.Policy.RepaymentRules(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *API) saveRepaymentRules(w http.ResponseWriter, r *http.Request) {
	cur, err := a.deps.Policy.RepaymentRules(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !decodeBody(w, r, &cur) {
		return
	}
	saved, err := a.deps.Policy.SaveRepaymentRules(r.Context(), cur)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) getCreditScoring(w http.ResponseWriter, r *http.Request) {
	c, err := a.deps.Policy.CreditScoring(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) saveCreditScoring(w http.ResponseWriter, r *http.Request) {
	cur, err := a.deps.Policy.CreditScoring(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !decodeBody(w, r, &cur) {
		return
	}
	saved, err := a.deps.Policy.SaveCreditScoring(r.Context(), cur)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// listLoanProducts takes an optional q for fuzzy name search.
func (a *API) listLoanProducts(w http.ResponseWriter, r *http.Request) {
	var (
		items []policy.LoanProduct
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		items, err = a.deps.Policy.SearchLoanProducts(r.Context(), q)
	} else {
		items, err = a.deps.Policy.ListLoanProducts(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createLoanProduct(w http.ResponseWriter, r *http.Request) {
	var req loanProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := a.deps.Policy.AddLoanProduct(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, "/v1/loan-products/"+p.ID, p)
}

func (a *API) getLoanProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.deps.Policy.GetLoanProduct(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) renameLoanProduct(w http.ResponseWriter, r *http.Request) {
	var req loanProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := a.deps.Policy.RenameLoanProduct(r.Context(), pathID(r), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteLoanProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Policy.DeleteLoanProduct(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	noContent(w)
}
