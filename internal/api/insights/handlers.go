// Package insights serves the reservation dashboard: upload, metrics, the
// data table, exports and the ask-AI panel.
package insights

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/apiutil"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/htmx"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/chat"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/tableio"
	insightstempl "github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/components/insights"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/layouts"
)

const (
	defaultPerPage     = 50
	maxPerPage         = 500
	uploadedAtLayout   = "2006-01-02 15:04 MST"
	exportBaseFileName = "processed_reservation_data"
	defaultMaxUpload   = 10 << 20
)

// Config carries the collaborators the dashboard handlers need.
type Config struct {
	Title          string
	Chat           *chat.Client
	MaxUploadBytes int64
}

var (
	handlersMu sync.RWMutex
	deps       = Config{MaxUploadBytes: defaultMaxUpload}
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(cfg Config) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.Chat == nil {
		log.Warn().Msg("Chat client not configured; ask-AI panel disabled")
	}
	handlersMu.Lock()
	deps = cfg
	handlersMu.Unlock()
}

func loadDeps() Config {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return deps
}

// HandleDashboardPage renders the dashboard for GET /.
func HandleDashboardPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	cfg := loadDeps()
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := insightstempl.DashboardData{
		Dataset:     buildDatasetData(sess, 1, defaultPerPage),
		ChatEnabled: cfg.Chat != nil,
	}
	if turns := sess.Turns(); len(turns) > 0 {
		last := turns[len(turns)-1]
		data.Ask = &insightstempl.AskResult{Query: last.Query, Answer: last.Answer}
	}

	renderPage(w, r, cfg, http.StatusOK, data)
}

// HandleUpload processes a reservation file for POST /api/v1/dataset. A
// rejected upload leaves the previous dataset in place.
func HandleUpload(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	cfg := loadDeps()
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	dataset, err := processUpload(w, r, cfg.MaxUploadBytes)
	if err != nil {
		var handlerErr apiutil.HandlerError
		if !errors.As(err, &handlerErr) {
			handlerErr = apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to process upload", Err: err}
		}
		logger.Warn().Err(err).Int("status", handlerErr.Status).Msg("Upload rejected")
		respondUploadError(w, r, cfg, sess, handlerErr)
		return
	}

	sess.SetDataset(dataset)
	logger.Info().
		Str("file_name", dataset.FileName).
		Int("rows", dataset.Result.Summary.RowCount).
		Msg("Dataset processed")

	switch {
	case apiutil.WantsJSON(r):
		_ = apiutil.WriteJSON(w, http.StatusOK, newMetricsResponse(dataset))
	case htmx.IsRequest(r):
		component := insightstempl.UploadResult(insightstempl.DashboardData{
			Dataset:     buildDatasetData(sess, 1, defaultPerPage),
			ChatEnabled: cfg.Chat != nil,
		})
		apiutil.RenderHTMLComponent(r.Context(), w, component, nil, "Failed to render dataset section", "Failed to render dataset")
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func processUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*session.Dataset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apiutil.HandlerError{Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("File exceeds the %d byte upload limit", maxBytes), Err: err}
		}
		return nil, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid upload form", Err: err}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "A reservation file is required", Err: err}
	}
	defer file.Close()

	raw, err := tableio.Load(header.Filename, file)
	if err != nil {
		return nil, apiutil.HandlerError{Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf("Could not read %s: %v", header.Filename, err), Err: err}
	}

	result, err := reservations.Compute(raw, reservations.Options{AverageDailyRevenue: true})
	if err != nil {
		return nil, apiutil.HandlerError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
	}

	return &session.Dataset{
		FileName:   header.Filename,
		UploadedAt: time.Now(),
		Result:     result,
	}, nil
}

func respondUploadError(w http.ResponseWriter, r *http.Request, cfg Config, sess *session.Session, handlerErr apiutil.HandlerError) {
	if apiutil.WantsJSON(r) {
		apiutil.WriteJSONError(w, handlerErr.Status, handlerErr.Message)
		return
	}

	data := buildDatasetData(sess, 1, defaultPerPage)
	data.UploadError = handlerErr.Message

	if htmx.IsRequest(r) {
		// htmx only swaps 2xx responses by default.
		headers := map[string]string{"HX-Reswap": "innerHTML"}
		apiutil.RenderHTMLComponentStatus(r.Context(), w, http.StatusOK, insightstempl.DatasetSection(data), headers, "Failed to render upload error", "Failed to render dataset")
		return
	}
	renderPage(w, r, cfg, handlerErr.Status, insightstempl.DashboardData{Dataset: data, ChatEnabled: cfg.Chat != nil})
}

// HandleMetrics returns the metrics for GET /api/v1/dataset/metrics.
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	dataset, ok := requireDataset(w, r, sess)
	if !ok {
		return
	}

	if apiutil.WantsJSON(r) {
		_ = apiutil.WriteJSON(w, http.StatusOK, newMetricsResponse(dataset))
		return
	}
	data := insightstempl.DatasetData{Metrics: buildMetricsPanel(dataset)}
	apiutil.RenderHTMLComponent(r.Context(), w, insightstempl.DatasetSection(data), nil, "Failed to render metrics", "Failed to render metrics")
}

// HandleRows returns one page of the augmented table for GET /api/v1/dataset/rows.
func HandleRows(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	dataset, ok := requireDataset(w, r, sess)
	if !ok {
		return
	}

	page, err := apiutil.ParsePositiveIntQuery(r, "page", 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	perPage, err := apiutil.ParsePositiveIntQuery(r, "per_page", defaultPerPage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tablePage := buildTablePage(dataset.Result.Table, page, perPage)
	if apiutil.WantsJSON(r) {
		_ = apiutil.WriteJSON(w, http.StatusOK, tablePage)
		return
	}
	apiutil.RenderHTMLComponent(r.Context(), w, insightstempl.DataTable(tablePage), nil, "Failed to render data table", "Failed to render table")
}

// HandleExport downloads the augmented table in the given format.
func HandleExport(format tableio.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())
		sess := session.FromContext(r.Context())
		dataset, ok := requireDataset(w, r, sess)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := tableio.Write(&buf, format, dataset.Result.Table); err != nil {
			logger.Error().Err(err).Str("format", string(format)).Msg("Failed to export dataset")
			http.Error(w, "Failed to export dataset", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		if format != tableio.FormatJSON {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, exportBaseFileName, format))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// HandleAsk forwards a question about the current dataset for POST /api/v1/ask.
// Chat failures are reported inline and never touch the computed metrics.
func HandleAsk(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	cfg := loadDeps()
	sess := session.FromContext(r.Context())
	dataset, ok := requireDataset(w, r, sess)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	query := strings.TrimSpace(r.PostFormValue("query"))
	result := &insightstempl.AskResult{Query: query}

	status := http.StatusOK
	answer, err := askDataset(r, cfg.Chat, sess, dataset, query)
	if err != nil {
		status = askErrorStatus(err)
		logger.Warn().Err(err).Int("status", status).Msg("Chat request failed")
		result.Error = fmt.Sprintf("Error communicating with the chat service: %v", err)
	} else {
		result.Answer = answer
		if !sess.AppendTurnFor(dataset, chat.Turn{Query: query, Answer: answer}) {
			logger.Info().Str("file", dataset.FileName).Msg("Dataset replaced during chat request; turn not recorded")
		}
	}

	if apiutil.WantsJSON(r) {
		if result.Error != "" {
			apiutil.WriteJSONError(w, status, result.Error)
			return
		}
		_ = apiutil.WriteJSON(w, http.StatusOK, map[string]string{"query": query, "answer": answer})
		return
	}

	data := insightstempl.DashboardData{
		Dataset:     buildDatasetData(sess, 1, defaultPerPage),
		Ask:         result,
		ChatEnabled: cfg.Chat != nil,
	}
	if htmx.IsRequest(r) {
		apiutil.RenderHTMLComponent(r.Context(), w, insightstempl.AskPanel(data), nil, "Failed to render ask panel", "Failed to render response")
		return
	}
	renderPage(w, r, cfg, http.StatusOK, data)
}

func askDataset(r *http.Request, client *chat.Client, sess *session.Session, dataset *session.Dataset, query string) (string, error) {
	if client == nil {
		return "", chat.ErrNotConfigured
	}
	payload, err := json.Marshal(dataset.Result.Table)
	if err != nil {
		return "", fmt.Errorf("serialize dataset: %w", err)
	}
	return client.Ask(r.Context(), chat.Request{
		Dataset: payload,
		Query:   query,
		History: sess.Turns(),
	})
}

func askErrorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, chat.ErrChatTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func requireDataset(w http.ResponseWriter, r *http.Request, sess *session.Session) (*session.Dataset, bool) {
	if sess == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	dataset, err := sess.Dataset()
	if err != nil {
		if apiutil.WantsJSON(r) {
			apiutil.WriteJSONError(w, http.StatusNotFound, "Upload a reservation file first")
			return nil, false
		}
		http.Error(w, "Upload a reservation file first", http.StatusNotFound)
		return nil, false
	}
	return dataset, true
}

func renderPage(w http.ResponseWriter, r *http.Request, cfg Config, status int, data insightstempl.DashboardData) {
	page := layouts.Base(layouts.PageData{Title: cfg.Title, Authenticated: true}, insightstempl.DashboardLayout(data))
	apiutil.RenderHTMLComponentStatus(r.Context(), w, status, page, nil, "Failed to render dashboard page", "Failed to render page")
}
