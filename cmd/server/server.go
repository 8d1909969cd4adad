// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/access"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/insights"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/chat"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/config"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/secrets"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/tableio"
)

func newServer(cfg *config.Config, secret secrets.Secrets, sessions *session.Manager) (*http.Server, error) {
	chatClient, err := newChatClient(cfg, secret)
	if err != nil {
		return nil, err
	}

	access.InitHandlers(secret, sessions, cfg.App.Name)
	insights.InitHandlers(insights.Config{
		Title:          cfg.App.Name,
		Chat:           chatClient,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})

	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithSession(sessions),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	// Register routes
	registerRoutes(router, cfg.App.StaticDir)

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.App.Port),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// Ask requests hold the connection for the whole chat round trip.
		WriteTimeout: cfg.Chat.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func newChatClient(cfg *config.Config, secret secrets.Secrets) (*chat.Client, error) {
	if secret.OpenAIAPIKey == "" {
		return nil, nil
	}
	streamer, err := chat.NewOpenAIStreamer(secret.OpenAIAPIKey, cfg.Chat.BaseURL, cfg.Chat.Model)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}
	return chat.NewClient(streamer, cfg.Chat.Timeout), nil
}

func registerRoutes(mux *http.ServeMux, staticDir string) {
	protected := func(h http.HandlerFunc) http.Handler {
		return api.RequireAccess(h)
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Access gate
	mux.HandleFunc("GET /login", access.HandleLoginPage)
	mux.HandleFunc("POST /login", access.HandleLogin)
	mux.HandleFunc("POST /logout", access.HandleLogout)

	// Dashboard
	mux.Handle("GET /", protected(insights.HandleDashboardPage))
	mux.Handle("POST /api/v1/dataset", protected(insights.HandleUpload))
	mux.Handle("GET /api/v1/dataset/metrics", protected(insights.HandleMetrics))
	mux.Handle("GET /api/v1/dataset/rows", protected(insights.HandleRows))
	mux.Handle("GET /api/v1/dataset/export.csv", protected(insights.HandleExport(tableio.FormatCSV)))
	mux.Handle("GET /api/v1/dataset/export.xlsx", protected(insights.HandleExport(tableio.FormatXLSX)))
	mux.Handle("GET /api/v1/dataset/records.json", protected(insights.HandleExport(tableio.FormatJSON)))
	mux.Handle("POST /api/v1/ask", protected(insights.HandleAsk))

	// Static file handling
	if staticDir == "" {
		staticDir = "build/bin/static"
	}
	fs := http.FileServer(http.Dir(staticDir))
	mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().
			Str("path", r.URL.Path).
			Str("static_dir", staticDir).
			Msg("Static file request")
		http.StripPrefix("/static/", fs).ServeHTTP(w, r)
	}))
}
