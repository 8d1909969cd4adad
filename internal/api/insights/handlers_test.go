package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/chat"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/tableio"
)

const reservationsCSV = `Date,Fees,Registrants,Court,Duration
2024-01-01,$25.00,4,"1,2",2
2024-01-01,$10,1,,1.5
2024-01-02,"$1,000.50",2,3,1
`

type fakeStream struct {
	fragments []string
	err       error
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	fragment := s.fragments[0]
	s.fragments = s.fragments[1:]
	return fragment, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeStreamer struct {
	fragments []string
	err       error
	prompts   [][]chat.Message
	// onStream runs while the request is in flight.
	onStream func()
}

func (f *fakeStreamer) Stream(_ context.Context, messages []chat.Message) (chat.FragmentStream, error) {
	f.prompts = append(f.prompts, messages)
	if f.onStream != nil {
		f.onStream()
	}
	if f.err != nil {
		return nil, f.err
	}
	fragments := make([]string, len(f.fragments))
	copy(fragments, f.fragments)
	return &fakeStream{fragments: fragments}, nil
}

func setupInsightsTest(t *testing.T, streamer chat.Streamer) *session.Session {
	t.Helper()

	prev := loadDeps()
	t.Cleanup(func() {
		InitHandlers(prev)
	})

	cfg := Config{Title: "Reservation Insights", MaxUploadBytes: 1 << 20}
	if streamer != nil {
		cfg.Chat = chat.NewClient(streamer, time.Second)
	}
	InitHandlers(cfg)

	store := session.NewStore(time.Hour, nil)
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess.Authorize()
	return sess
}

func withSession(req *http.Request, sess *session.Session) *http.Request {
	return req.WithContext(session.ContextWithSession(req.Context(), sess))
}

func uploadRequest(t *testing.T, sess *session.Session, fileName, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dataset", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return withSession(req, sess)
}

func mustUpload(t *testing.T, sess *session.Session) {
	t.Helper()

	req := uploadRequest(t, sess, "reservations.csv", reservationsCSV)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	HandleUpload(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleUploadRendersMetrics(t *testing.T) {
	sess := setupInsightsTest(t, nil)

	req := uploadRequest(t, sess, "reservations.csv", reservationsCSV)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	HandleUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"$2,111.00", "$1,055.50", "5.00", "reservations.csv", "CourtUtilization"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got: %s", want, body)
		}
	}

	dataset, err := sess.Dataset()
	if err != nil {
		t.Fatalf("expected dataset to be stored: %v", err)
	}
	if dataset.Result.Summary.TotalRegistrants != 7 {
		t.Errorf("expected 7 registrants, got %d", dataset.Result.Summary.TotalRegistrants)
	}
}

func TestHandleUploadRedirectsPlainForm(t *testing.T) {
	sess := setupInsightsTest(t, nil)

	rec := httptest.NewRecorder()
	HandleUpload(rec, uploadRequest(t, sess, "reservations.csv", reservationsCSV))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("expected redirect to /, got %q", got)
	}
}

func TestHandleUploadRejectionKeepsPreviousDataset(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)
	before, _ := sess.Dataset()

	req := uploadRequest(t, sess, "broken.csv", "Date,Fees,Registrants\n2024-01-01,$5,1\n")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	HandleUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected htmx status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Court") || !strings.Contains(body, "Duration") {
		t.Errorf("expected missing columns in error, got: %s", body)
	}
	if !strings.Contains(body, "$2,111.00") {
		t.Errorf("expected previous metrics to remain visible, got: %s", body)
	}

	after, _ := sess.Dataset()
	if after != before {
		t.Error("expected rejected upload to leave the dataset untouched")
	}
}

func TestHandleUploadJSONErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		status   int
	}{
		{name: "malformed fee", fileName: "bad.csv", content: "Date,Fees,Registrants,Court,Duration\n2024-01-01,abc,1,1,1\n", status: http.StatusUnprocessableEntity},
		{name: "unsupported format", fileName: "notes.txt", content: "hello", status: http.StatusUnprocessableEntity},
		{name: "empty dataset", fileName: "empty.csv", content: "Date,Fees,Registrants,Court,Duration\n", status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := setupInsightsTest(t, nil)
			req := uploadRequest(t, sess, tt.fileName, tt.content)
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()

			HandleUpload(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["error"] == "" {
				t.Error("expected error message in payload")
			}
			if _, err := sess.Dataset(); !errors.Is(err, session.ErrNoDataset) {
				t.Errorf("expected no dataset, got %v", err)
			}
		})
	}
}

func TestHandleUploadTooLarge(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	InitHandlers(Config{MaxUploadBytes: 64})

	req := uploadRequest(t, sess, "reservations.csv", reservationsCSV+strings.Repeat("2024-01-03,$1,1,1,1\n", 20))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	HandleUpload(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMetricsJSON(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/metrics", nil), sess)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	HandleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	checks := map[string]float64{
		"row_count":               3,
		"distinct_dates":          2,
		"total_revenue":           2111,
		"average_daily_revenue":   1055.5,
		"total_court_utilization": 5,
		"total_registrants":       7,
	}
	for key, want := range checks {
		got, ok := payload[key].(float64)
		if !ok {
			t.Errorf("%s: expected a JSON number, got %#v", key, payload[key])
			continue
		}
		if got != want {
			t.Errorf("%s: expected %v, got %v", key, want, got)
		}
	}
}

func TestHandleMetricsWithoutDataset(t *testing.T) {
	sess := setupInsightsTest(t, nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/metrics", nil), sess)
	rec := httptest.NewRecorder()

	HandleMetrics(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleRowsPagination(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/rows?page=2&per_page=2", nil), sess)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	HandleRows(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Columns    []string   `json:"columns"`
		Rows       [][]string `json:"rows"`
		Page       int        `json:"page"`
		TotalPages int        `json:"total_pages"`
		TotalRows  int        `json:"total_rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 2 || page.TotalRows != 3 {
		t.Fatalf("unexpected paging: %+v", page)
	}
	if len(page.Rows) != 1 {
		t.Fatalf("expected 1 row on last page, got %d", len(page.Rows))
	}
	if got := page.Rows[0][0]; got != "2024-01-02" {
		t.Errorf("expected last row date 2024-01-02, got %q", got)
	}
	if got := page.Columns[len(page.Columns)-1]; got != "CourtUtilization" {
		t.Errorf("expected derived columns last, got %q", got)
	}
}

func TestHandleRowsRejectsBadPage(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/rows?page=zero", nil), sess)
	rec := httptest.NewRecorder()

	HandleRows(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleExportCSV(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/export.csv", nil), sess)
	rec := httptest.NewRecorder()

	HandleExport(tableio.FormatCSV)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "processed_reservation_data.csv") {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	header, _, _ := strings.Cut(rec.Body.String(), "\n")
	if header != "Date,Fees,Registrants,Court,Duration,Revenue,CourtCount,CourtUtilization" {
		t.Errorf("unexpected export header %q", header)
	}
}

func TestHandleExportXLSXRoundTrips(t *testing.T) {
	sess := setupInsightsTest(t, nil)
	mustUpload(t, sess)

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/export.xlsx", nil), sess)
	rec := httptest.NewRecorder()

	HandleExport(tableio.FormatXLSX)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	raw, err := tableio.LoadXLSX(rec.Body)
	if err != nil {
		t.Fatalf("reload export: %v", err)
	}
	if len(raw.Rows) != 3 {
		t.Errorf("expected 3 exported rows, got %d", len(raw.Rows))
	}
}

func TestHandleAskAnswersAndRemembersTurn(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Revenue ", "peaked ", "on Jan 2."}}
	sess := setupInsightsTest(t, streamer)
	mustUpload(t, sess)

	ask := func(query string) *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("query", query)
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(form.Encode())), sess)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		HandleAsk(rec, req)
		return rec
	}

	rec := ask("When was revenue highest?")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Revenue peaked on Jan 2.") {
		t.Errorf("expected concatenated answer, got: %s", rec.Body.String())
	}

	ask("Why?")
	if len(streamer.prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(streamer.prompts))
	}
	followUp := streamer.prompts[1]
	if len(followUp) != 4 {
		t.Fatalf("expected system, history pair and question, got %d messages", len(followUp))
	}
	if followUp[1].Content != "When was revenue highest?" || followUp[2].Content != "Revenue peaked on Jan 2." {
		t.Errorf("unexpected history replay: %+v", followUp[1:3])
	}
	if !strings.Contains(followUp[3].Content, `"Revenue":100`) {
		t.Errorf("expected dataset JSON in prompt, got %q", followUp[3].Content)
	}
	if got := len(sess.Turns()); got != 2 {
		t.Errorf("expected 2 remembered turns, got %d", got)
	}
}

func TestHandleAskUploadDuringRequestStartsFreshConversation(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Old answer."}}
	sess := setupInsightsTest(t, streamer)
	mustUpload(t, sess)

	var replaced *session.Dataset
	streamer.onStream = func() {
		mustUpload(t, sess)
		replaced, _ = sess.Dataset()
	}

	form := url.Values{}
	form.Set("query", "Which day was busiest?")
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(form.Encode())), sess)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	HandleAsk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Old answer.") {
		t.Errorf("expected the answer to be returned, got: %s", rec.Body.String())
	}
	current, _ := sess.Dataset()
	if replaced == nil || current != replaced {
		t.Fatal("expected the mid-request upload to be the current dataset")
	}
	if turns := sess.Turns(); len(turns) != 0 {
		t.Errorf("expected the new dataset to start with no history, got %+v", turns)
	}
}

func TestHandleAskFailureIsIsolated(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("connection reset")}
	sess := setupInsightsTest(t, streamer)
	mustUpload(t, sess)
	before, _ := sess.Dataset()

	form := url.Values{}
	form.Set("query", "Summarize the week")
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(form.Encode())), sess)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	HandleAsk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected inline error with status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error communicating with the chat service") {
		t.Errorf("expected inline chat error, got: %s", rec.Body.String())
	}
	after, _ := sess.Dataset()
	if after != before {
		t.Error("expected chat failure to leave the dataset untouched")
	}
	if len(sess.Turns()) != 0 {
		t.Error("expected failed question to be forgotten")
	}
}

func TestHandleAskJSONStatuses(t *testing.T) {
	tests := []struct {
		name     string
		streamer chat.Streamer
		query    string
		status   int
	}{
		{name: "empty query", streamer: &fakeStreamer{fragments: []string{"ok"}}, query: "  ", status: http.StatusBadRequest},
		{name: "not configured", streamer: nil, query: "hello", status: http.StatusServiceUnavailable},
		{name: "stream failure", streamer: &fakeStreamer{err: errors.New("boom")}, query: "hello", status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := setupInsightsTest(t, tt.streamer)
			mustUpload(t, sess)

			form := url.Values{}
			form.Set("query", tt.query)
			req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(form.Encode())), sess)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			rec := httptest.NewRecorder()

			HandleAsk(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleDashboardPage(t *testing.T) {
	sess := setupInsightsTest(t, nil)

	req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), sess)
	rec := httptest.NewRecorder()

	HandleDashboardPage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Upload a reservation file to see metrics.") {
		t.Errorf("expected empty-state prompt, got: %s", body)
	}
	if !strings.Contains(body, "The chat service is not configured.") {
		t.Errorf("expected chat disabled notice, got: %s", body)
	}
}
