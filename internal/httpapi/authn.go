package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/rbac"
)

const (
	authHeader     = "Authorization"
	bearer         = "Bearer "
	apiTokenHeader = "X-API-Token"

	// apiPrincipal is the actor recorded for calls made with the API token.
	apiPrincipal = "api-token"
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

func (a *API) authEnabled() bool { return a.deps.Issuer != nil }

func (a *API) withAuth(next http.Handler) http.Handler {
	if !a.authEnabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		var (
			principal auth.Principal
			err       error
		)
		if tok := strings.TrimSpace(r.Header.Get(apiTokenHeader)); tok != "" {
			principal, err = a.apiTokenPrincipal(r.Context(), tok)
		} else {
			var token string
			token, err = extractBearerToken(r.Header.Get(authHeader))
			if err == nil {
				principal, err = a.bearerPrincipal(r.Context(), token)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, apperr.ErrForbidden):
				writeError(w, r, http.StatusForbidden, err.Error())
			case errors.Is(err, apperr.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", `Bearer realm="loanadmin"`)
				writeError(w, r, http.StatusUnauthorized, err.Error())
			default:
				writeServiceError(w, r, err)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// bearerPrincipal resolves the token's user and loads the current permissions
// of the user's role, so role edits apply without reissuing tokens.
func (a *API) bearerPrincipal(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := a.deps.Issuer.Parse(token)
	if err != nil {
		return auth.Principal{}, err
	}
	user, err := a.deps.Org.GetUser(ctx, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if user.Status != org.StatusActive {
		return auth.Principal{}, fmt.Errorf("%w: account is inactive", apperr.ErrForbidden)
	}
	perms, err := a.deps.Roles.Permissions(ctx, user.RoleID)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: user.ID, Username: user.Username, RoleID: user.RoleID, Permissions: perms}, nil
}

// apiTokenPrincipal accepts the integration token from the security settings.
// It carries every permission.
func (a *API) apiTokenPrincipal(ctx context.Context, token string) (auth.Principal, error) {
	ok, err := a.deps.Policy.VerifyAPIToken(ctx, token)
	if err != nil {
		return auth.Principal{}, err
	}
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return auth.Principal{UserID: apiPrincipal, Username: apiPrincipal, Permissions: rbac.AllGranted()}, nil
}

// require wraps h with a permission check. Without authentication every call passes.
func (a *API) require(perm string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.requirePermission(r.Context(), perm); err != nil {
			writeServiceError(w, r, err)
			return
		}
		h(w, r)
	}
}

func (a *API) requirePermission(ctx context.Context, perm string) error {
	if !a.authEnabled() {
		return nil
	}
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return apperr.ErrUnauthorized
	}
	if !principal.HasPermission(perm) {
		return fmt.Errorf("%w: missing permission %s", apperr.ErrForbidden, perm)
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", fmt.Errorf("%w: invalid authorization scheme", apperr.ErrUnauthorized)
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
