// Package htmx reads and writes the htmx request and response headers the
// dashboard relies on.
package htmx

import (
	"net/http"
	"strings"
)

const (
	HeaderRequest  = "HX-Request"
	HeaderRedirect = "HX-Redirect"
)

// IsRequest reports whether the request was issued by htmx rather than a
// full page navigation.
func IsRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(HeaderRequest), "true")
}

// ClientRedirect asks htmx to navigate the whole page to path. htmx acts on
// HX-Redirect whatever the status, so callers may still report a failure.
func ClientRedirect(w http.ResponseWriter, path string, status int) {
	w.Header().Set(HeaderRedirect, path)
	w.WriteHeader(status)
}

// Redirect sends htmx requests to path with HX-Redirect and everything else
// with a 303.
func Redirect(w http.ResponseWriter, r *http.Request, path string) {
	if IsRequest(r) {
		ClientRedirect(w, path, http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
