package router

import (
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/metrics"
)

// staticAsset matches paths with a static file extension anywhere before the
// query string. Plain ".js" counts, ".json" does not.
var staticAsset = regexp.MustCompile(`^[^?]*\.(?:html?|css|jpe?g|webp|png|gif|svg|ttf|woff2?|ico|csv|docx?|xlsx?|zip|webmanifest|js(?:$|[^o]|o(?:$|[^n])))`)

// GateMatches reports whether the request gate applies to path: every page
// and API path, but not framework internals or static files.
func GateMatches(path string) bool {
	if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/trpc") {
		return true
	}
	rest := strings.TrimPrefix(path, "/")
	if strings.HasPrefix(rest, "_next") || strings.HasPrefix(rest, "static/") {
		return false
	}
	return !staticAsset.MatchString(rest)
}

// Gate is the request interceptor evaluated before routing. It does not
// authenticate: every request is forwarded unchanged and each protected
// handler checks the session itself via auth.Require.
func Gate(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			matched := GateMatches(r.URL.Path)
			metrics.RecordGate(matched)
			if matched {
				logger.Debugw("gate pass-through", "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
		})
	}
}
