package chi

import (
	"context"
	"net/http"
	"strings"

	domdoc "github.com/kailas-cloud/finrag/internal/domain/document"
)

// NamespaceHeader carries the namespace when no API keys are configured.
const NamespaceHeader = "X-Namespace"

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type namespaceKey struct{}

// NamespaceFromContext returns the caller's namespace, or "" outside an authenticated request.
func NamespaceFromContext(ctx context.Context) string {
	ns, _ := ctx.Value(namespaceKey{}).(string)
	return ns
}

// ContextWithNamespace stores the caller's namespace.
func ContextWithNamespace(ctx context.Context, ns string) context.Context {
	return context.WithValue(ctx, namespaceKey{}, ns)
}

// NamespaceAuthMiddleware resolves the caller's namespace.
// keys maps a Bearer token to its namespace. With no keys (local mode) the
// X-Namespace header names the namespace instead.
func NamespaceAuthMiddleware(keys map[string]string) func(http.Handler) http.Handler {
	valid := make(map[string]string, len(keys))
	for k, ns := range keys {
		if k != "" && ns != "" {
			valid[k] = ns
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var ns string
			if len(valid) == 0 {
				ns = strings.TrimSpace(r.Header.Get(NamespaceHeader))
				if ns == "" {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing "+NamespaceHeader+" header")
					return
				}
				if err := domdoc.ValidateNamespace(ns); err != nil {
					writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
					return
				}
			} else {
				auth := r.Header.Get("Authorization")
				if auth == "" {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
					return
				}

				const bearerPrefix = "Bearer "
				if !strings.HasPrefix(auth, bearerPrefix) {
					writeError(w, http.StatusUnauthorized,
						ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
					return
				}

				var ok bool
				if ns, ok = valid[auth[len(bearerPrefix):]]; !ok {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid api key")
					return
				}
			}

			markNamespace(r.Context(), ns)
			next.ServeHTTP(w, r.WithContext(ContextWithNamespace(r.Context(), ns)))
		})
	}
}
