// Package access implements the shared-secret gate in front of the dashboard.
package access

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/apiutil"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/htmx"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/secrets"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
	insightstempl "github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/components/insights"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/layouts"
)

const rejectedMessage = "Please enter the correct magic string to access the app."

var (
	handlersMu sync.RWMutex
	gate       secrets.Secrets
	sessions   *session.Manager
	appTitle   string
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(secret secrets.Secrets, manager *session.Manager, title string) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	gate = secret
	sessions = manager
	appTitle = title
}

func loadDeps() (secrets.Secrets, *session.Manager, string) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return gate, sessions, appTitle
}

// HandleLoginPage renders the gate form for GET /login.
func HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	_, _, title := loadDeps()
	if sess := session.FromContext(r.Context()); sess != nil && sess.Authorized() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderLogin(w, r, title, http.StatusOK, "")
}

// HandleLogin checks the submitted magic string for POST /login. A fresh
// session is issued on success so a pre-login cookie is never promoted.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	secret, manager, title := loadDeps()
	if manager == nil {
		logger.Error().Msg("Access handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	if !VerifyMagicString(secret, r.PostFormValue("magic_string")) {
		logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Access gate rejected magic string")
		if apiutil.WantsJSON(r) {
			apiutil.WriteJSONError(w, http.StatusUnauthorized, rejectedMessage)
			return
		}
		renderLogin(w, r, title, http.StatusUnauthorized, rejectedMessage)
		return
	}

	if old := session.FromContext(r.Context()); old != nil {
		manager.Store().Delete(old.ID)
	}
	sess, err := manager.Issue(w)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	sess.Authorize()
	logger.Info().Msg("Access gate passed")

	if apiutil.WantsJSON(r) {
		_ = apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"authorized": true})
		return
	}
	htmx.Redirect(w, r, "/")
}

// HandleLogout ends the session for POST /logout.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	_, manager, _ := loadDeps()
	if manager != nil {
		manager.Clear(w, r)
	}
	htmx.Redirect(w, r, "/login")
}

func renderLogin(w http.ResponseWriter, r *http.Request, title string, status int, message string) {
	page := layouts.Base(layouts.PageData{Title: title}, insightstempl.LoginPage(insightstempl.LoginData{Error: message}))
	apiutil.RenderHTMLComponentStatus(r.Context(), w, status, page, nil, "Failed to render login page", "Failed to render page")
}
