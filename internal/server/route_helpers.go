package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/extracta/internal/handlers"
)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]http.HandlerFunc

// ServeHTTP dispatches on the request method; unknown methods get 405 with an Allow header
func (m MethodRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler, ok := m[r.Method]
	if !ok {
		allowed := make([]string, 0, len(m))
		for method := range m {
			allowed = append(allowed, method)
		}
		sort.Strings(allowed)
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}

// SegmentRoute matches the path segments after a prefix. An empty pattern
// segment matches any value, e.g. {"", "extraction", "status"}.
type SegmentRoute struct {
	Pattern []string
	Handler http.Handler
}

func (route SegmentRoute) matches(segments []string) bool {
	if len(segments) != len(route.Pattern) {
		return false
	}
	for i, want := range route.Pattern {
		if want != "" && want != segments[i] {
			return false
		}
	}
	return true
}

// RouteBySegments serves the first route matching the path below prefix.
// Returns false when nothing matched.
func RouteBySegments(w http.ResponseWriter, r *http.Request, prefix string, routes []SegmentRoute) bool {
	segments := handlers.PathSegments(r.URL.Path, prefix)
	for _, route := range routes {
		if route.matches(segments) {
			route.Handler.ServeHTTP(w, r)
			return true
		}
	}
	return false
}
