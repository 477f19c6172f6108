package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loanadmin.org/internal/audit"
	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/policy"
	"loanadmin.org/internal/rbac"
	"loanadmin.org/internal/workflow"
)

const serviceName = "loanadmin-api"

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API. Issuer may be nil, which disables
// authentication and permission checks.
type Deps struct {
	Org      *org.Service
	Roles    *rbac.Service
	Policy   *policy.Service
	Workflow *workflow.Service
	Trail    *audit.Trail
	History  *audit.History
	Issuer   *auth.Issuer
	Ready    ReadyProbe
}

type Options struct {
	RateBurst    int
	RatePerSec   float64
	CORSOrigins  []string
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	router  *mux.Router
	deps    Deps
	opts    Options
	version string
}

func New(d Deps, version string, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{router: mux.NewRouter(), deps: d, opts: opts, version: version}
	a.routes()
	return a
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = Gzip(h)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/info", a.Info).Methods(http.MethodGet)
	a.authRoutes(v1)
	a.orgRoutes(v1)
	a.userRoutes(v1)
	a.assignRoutes(v1)
	a.rbacRoutes(v1)
	a.policyRoutes(v1)
	a.workflowRoutes(v1)
	a.auditRoutes(v1)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.deps.Ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"auth":    a.deps.Issuer != nil,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
