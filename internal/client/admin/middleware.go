package admin

import (
	"context"
	"net/http"
	"net/url"
)

type contextKey string

const decisionKey contextKey = "admin_decision"

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/admin/login"

// Require wraps a route tree with the guard. Unauthenticated requests are
// redirected to the login page with the original path preserved; host and
// role failures get a 403.
func Require(g *Guard, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r.Context(), r.Host, roles)
			switch d.State {
			case StateAuthenticated:
				ctx := context.WithValue(r.Context(), decisionKey, d)
				next.ServeHTTP(w, r.WithContext(ctx))
			case StateUnauthenticated:
				http.Redirect(w, r, LoginRedirect(r.URL.RequestURI()), http.StatusFound)
			default:
				http.Error(w, "access denied: "+d.State.String(), http.StatusForbidden)
			}
		})
	}
}

// LoginRedirect builds the login URL that returns to path after sign-in.
func LoginRedirect(path string) string {
	return LoginPath + "?" + url.Values{"redirect": {path}}.Encode()
}

// DecisionFrom returns the guard decision stored by Require.
func DecisionFrom(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}
