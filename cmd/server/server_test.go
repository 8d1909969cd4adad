package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/config"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/secrets"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.App.SecretKey = "test-secret-key"
	cfg.App.StaticDir = t.TempDir()
	sessions := session.NewManager(session.NewStore(time.Hour, nil), cfg.App.SecretKey, false)

	server, err := newServer(cfg, secrets.Secrets{MagicString: "open-sesame"}, sessions)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server.Handler
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireAccess(t *testing.T) {
	handler := newTestHandler(t)

	for _, path := range []string{"/", "/api/v1/dataset/metrics", "/api/v1/dataset/export.csv"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s: expected status 303, got %d", path, rec.Code)
		}
	}
}

func TestLoginUploadAndMetrics(t *testing.T) {
	handler := newTestHandler(t)

	form := url.Values{}
	form.Set("magic_string", "open-sesame")
	login := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	login.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, login)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login: expected status 303, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "reservations.csv")
	part.Write([]byte("Date,Fees,Registrants,Court,Duration\n2024-01-01,$20,3,\"1,2\",1.5\n"))
	writer.Close()

	upload := httptest.NewRequest(http.MethodPost, "/api/v1/dataset", &body)
	upload.Header.Set("Content-Type", writer.FormDataContentType())
	upload.Header.Set("Accept", "application/json")
	for _, cookie := range cookies {
		upload.AddCookie(cookie)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, upload)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"total_revenue":60`) {
		t.Errorf("unexpected upload response: %s", rec.Body.String())
	}

	records := httptest.NewRequest(http.MethodGet, "/api/v1/dataset/records.json", nil)
	for _, cookie := range cookies {
		records.AddCookie(cookie)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, records)
	if rec.Code != http.StatusOK {
		t.Fatalf("records: expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"CourtUtilization":3`) {
		t.Errorf("unexpected records body: %s", rec.Body.String())
	}
}
