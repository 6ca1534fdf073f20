package server

import (
	_ "embed"
	"net/http"
)

//go:embed livereload.js
var liveReloadScript []byte

func handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(liveReloadScript)
}

// staticHandler serves the output root with caching disabled and the
// reload client injected into pages.
func (s *DevServer) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.opts.Root))
	return noStore(injectLiveReload(files))
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		r.Header.Del("If-Modified-Since")
		r.Header.Del("If-None-Match")
		next.ServeHTTP(w, r)
	})
}
