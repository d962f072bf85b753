package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// endpointName is the charset peers use for endpoint names.
var endpointName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// endpointRoutes are the path prefixes that carry an endpoint name.
var endpointRoutes = []string{"/rpc/", "/remote/"}

// splitEndpoint returns the endpoint named by an endpoint route.
func splitEndpoint(path string) (string, bool) {
	for _, prefix := range endpointRoutes {
		if name, ok := strings.CutPrefix(path, prefix); ok {
			return name, true
		}
	}
	return "", false
}

// ValidateEndpoint rejects endpoint calls that could never be dispatched: a
// malformed endpoint name or a body over maxBytes. Other routes pass through
// untouched.
func ValidateEndpoint(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := splitEndpoint(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !endpointName.MatchString(name) {
				jsonError(w, http.StatusBadRequest, "invalid endpoint name")
				return
			}
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
