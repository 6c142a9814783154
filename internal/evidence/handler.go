package evidence

import (
	"net/http"
	"strings"
)

// FileServer serves stored evidence read-only. basePath is the path of the public
// base URL, so a request for <basePath>/<key> reads <root>/<key>. Directory
// listings are refused.
func FileServer(basePath, root string) http.Handler {
	fs := http.StripPrefix(basePath, http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}
