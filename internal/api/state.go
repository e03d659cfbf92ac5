package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stylelens/internal/app"
	"github.com/kalambet/stylelens/internal/fetch"
	"github.com/kalambet/stylelens/internal/look"
)

// maxRequestBodySize leaves room for a 10MB image after base64 expansion.
const maxRequestBodySize = 16 << 20

type AnalyzeRequest struct {
	Image string `json:"image"`
	Wait  bool   `json:"wait"`
}

type FetchRequest struct {
	URL  string `json:"url"`
	Wait bool   `json:"wait"`
}

type AnalyzeResponse struct {
	Status string               `json:"status"`
	Result *look.AnalysisResult `json:"result,omitempty"`
}

type SaveResponse struct {
	Saved  bool               `json:"saved"`
	Item   *look.WardrobeItem `json:"item,omitempty"`
	Notice string             `json:"notice,omitempty"`
}

func handleGetState(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Store.Snapshot())
	}
}

func handleAnalyze(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Image == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image is required")
			return
		}

		run := func(ctx context.Context) (look.AnalysisResult, error) { return deps.Store.Upload(ctx, req.Image) }
		respondAnalysis(w, r, deps, bg, "upload", req.Wait, run)
	}
}

func handleFetch(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}

		run := func(ctx context.Context) (look.AnalysisResult, error) { return deps.Store.FetchByURL(ctx, req.URL) }
		respondAnalysis(w, r, deps, bg, "fetch", req.Wait, run)
	}
}

func handleRescan(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := historyIndex(deps, r)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "no history entry %q", chi.URLParam(r, "index"))
			return
		}
		wait := r.URL.Query().Get("wait") == "true"
		run := func(ctx context.Context) (look.AnalysisResult, error) { return deps.Store.RescanHistory(ctx, index) }
		respondAnalysis(w, r, deps, bg, "rescan", wait, run)
	}
}

// respondAnalysis runs an analysis either inline or in the background and
// writes the matching response.
func respondAnalysis(w http.ResponseWriter, r *http.Request, deps AppDeps, bg *tasks, op string, wait bool, run func(context.Context) (look.AnalysisResult, error)) {
	if !wait {
		bg.run(r.Context(), op, func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		})
		writeJSON(w, http.StatusAccepted, AnalyzeResponse{Status: "loading"})
		return
	}

	res, err := run(r.Context())
	var fe *fetch.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AnalyzeResponse{Status: "done", Result: &res})
	case errors.Is(err, app.ErrNoImage):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, app.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, app.ErrSuperseded):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.As(err, &fe):
		httpError(w, http.StatusBadGateway, "fetch_error", "%s", fetch.UserMessage)
	default:
		httpError(w, http.StatusBadGateway, "analysis_error", "%s", app.ErrorMessage(err))
	}
}

func handleSave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Store.SaveToWardrobe()
		switch {
		case app.IsNotice(err):
			writeJSON(w, http.StatusOK, SaveResponse{Saved: false, Notice: err.Error()})
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "saving look: %v", err)
		default:
			writeJSON(w, http.StatusCreated, SaveResponse{Saved: true, Item: &item})
		}
	}
}

func handleRemove(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := deps.Store.RemoveFromWardrobe(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
	}
}

func handleOpen(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		item, err := deps.Store.OpenWardrobeItem(id)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found_error", "wardrobe item %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleSetView(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
		defer r.Body.Close()

		var req struct {
			View string `json:"view"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		v, err := look.ParseView(req.View)
		if err == nil {
			err = deps.Store.SwitchView(v)
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]look.View{"view": v})
	}
}

func handleToggleTheme(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]look.Theme{"theme": deps.Store.ToggleTheme()})
	}
}

func handleClearHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.ClearHistory()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetFeed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"looks": deps.Feed.Looks,
			"tags":  deps.Feed.Tags(),
			"tips":  deps.Feed.Tips,
		})
	}
}

// historyIndex parses the {index} URL parameter and checks it against the
// current history.
func historyIndex(deps AppDeps, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, index < len(deps.Store.Snapshot().History)
}
