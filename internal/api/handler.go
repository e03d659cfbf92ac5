// Package api exposes the application store over HTTP (HTML views and a JSON
// API) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stylelens/internal/app"
	"github.com/kalambet/stylelens/internal/feed"
)

type AppDeps struct {
	Store   *app.Store
	Feed    feed.Feed
	Storage StorageInspector // optional; backs GET /api/storage
	Token   string           // guards /api when set
}

// NewAppHandler returns the HTML views, the JSON API under /api and /health.
func NewAppHandler(deps AppDeps) http.Handler {
	return routes(deps, &tasks{})
}

func routes(deps AppDeps, bg *tasks) chi.Router {
	pages := newPages()

	r := chi.NewRouter()
	r.Use(SameOrigin())
	r.Get("/health", handleHealth)

	r.Get("/", handleIndex(deps, pages))
	r.Post("/upload", handleUploadForm(deps, bg))
	r.Post("/analyze-url", handleAnalyzeURLForm(deps, bg))
	r.Post("/history/{index}", handleRescanForm(deps, bg))
	r.Post("/view/{view}", handleViewForm(deps))
	r.Post("/wardrobe", handleSaveForm(deps))
	r.Post("/wardrobe/{id}/open", handleOpenForm(deps))
	r.Post("/wardrobe/{id}/delete", handleDeleteForm(deps))
	r.Post("/theme", handleThemeForm(deps))

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/state", handleGetState(deps))
		r.Post("/analyze", handleAnalyze(deps, bg))
		r.Post("/fetch", handleFetch(deps, bg))
		r.Post("/wardrobe", handleSave(deps))
		r.Delete("/wardrobe/{id}", handleRemove(deps))
		r.Post("/wardrobe/{id}/open", handleOpen(deps))
		r.Put("/view", handleSetView(deps))
		r.Post("/theme/toggle", handleToggleTheme(deps))
		r.Delete("/history", handleClearHistory(deps))
		r.Post("/history/{index}", handleRescan(deps, bg))
		r.Get("/feed", handleGetFeed(deps))
		r.Get("/storage", handleGetStorage(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// tasks tracks analyses started without waiting for their result.
type tasks struct {
	wg sync.WaitGroup
}

// run calls fn in a new goroutine and returns once fn has marked the store
// as loading or has finished. The context outlives the request that started
// it.
func (t *tasks) run(ctx context.Context, op string, fn func(ctx context.Context) error) {
	started := make(chan struct{})
	signal := sync.OnceFunc(func() { close(started) })
	ctx = app.WithStartHook(context.WithoutCancel(ctx), signal)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer signal()
		logOutcome(op, fn(ctx))
	}()
	<-started
}

func (t *tasks) wait() { t.wg.Wait() }

func logOutcome(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, app.ErrSuperseded):
		slog.Debug("analysis superseded", "op", op)
	default:
		slog.Info("analysis failed", "op", op, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
