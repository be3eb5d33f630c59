package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/ekisa-team/speakpaint/web"
)

type baseURLKey struct{}

// withBaseURL stores "<scheme>://<host>" of the request for building absolute links.
func withBaseURL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		ctx := context.WithValue(r.Context(), baseURLKey{}, scheme+"://"+r.Host)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func baseURL(ctx context.Context) string {
	if v, ok := ctx.Value(baseURLKey{}).(string); ok {
		return v
	}
	return ""
}

func serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(web.Index())
}

func staticFiles() http.Handler {
	return http.FileServer(http.FS(web.Static()))
}

// noDirListing answers 404 for directory paths instead of listing them.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeJSONError(w, http.StatusNotFound, "Not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
