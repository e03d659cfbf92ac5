package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stylelens/internal/app"
	"github.com/kalambet/stylelens/internal/fetch"
	"github.com/kalambet/stylelens/internal/look"
)

const maxUploadSize = 10 << 20 // 10MB

func handleIndex(deps AppDeps, p *pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Store.Snapshot()
		data := indexData{
			State:  st,
			Views:  look.Views,
			Notice: notices[r.URL.Query().Get("notice")],
		}
		if st.IsLoading {
			data.Tip = deps.Feed.Tip()
		}
		for _, l := range deps.Feed.Looks {
			data.Looks = append(data.Looks, feedLook{URL: l.URL, Tags: strings.Join(l.Tags, " ")})
		}

		var buf bytes.Buffer
		if err := p.renderIndex(&buf, data); err != nil {
			slog.Error("rendering index", "error", err)
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		buf.WriteTo(w)
	}
}

func handleUploadForm(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "image is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
		if err != nil {
			http.Error(w, "reading upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(data) > maxUploadSize {
			http.Error(w, "image exceeds 10MB", http.StatusRequestEntityTooLarge)
			return
		}

		mediaType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(mediaType, "image/") {
			mediaType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(mediaType, "image/") {
			redirectHome(w, r, "not-image")
			return
		}

		image := fetch.EncodeDataURI(mediaType, data)
		bg.run(r.Context(), "upload", func(ctx context.Context) error {
			_, err := deps.Store.Upload(ctx, image)
			return err
		})
		redirectHome(w, r, "")
	}
}

func handleAnalyzeURLForm(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := strings.TrimSpace(r.FormValue("url"))
		if target == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}
		bg.run(r.Context(), "fetch", func(ctx context.Context) error {
			_, err := deps.Store.FetchByURL(ctx, target)
			return err
		})
		redirectHome(w, r, "")
	}
}

func handleRescanForm(deps AppDeps, bg *tasks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := historyIndex(deps, r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		bg.run(r.Context(), "rescan", func(ctx context.Context) error {
			_, err := deps.Store.RescanHistory(ctx, index)
			return err
		})
		redirectHome(w, r, "")
	}
}

func handleViewForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := look.ParseView(chi.URLParam(r, "view"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		deps.Store.SwitchView(v)
		redirectHome(w, r, "")
	}
}

func handleSaveForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := deps.Store.SaveToWardrobe()
		if err != nil && !app.IsNotice(err) {
			slog.Error("saving look", "error", err)
		}
		redirectHome(w, r, noticeCode(err))
	}
}

func handleOpenForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Store.OpenWardrobeItem(chi.URLParam(r, "id")); err != nil {
			http.NotFound(w, r)
			return
		}
		redirectHome(w, r, "")
	}
}

func handleDeleteForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notice := ""
		if deps.Store.RemoveFromWardrobe(chi.URLParam(r, "id")) {
			notice = "removed"
		}
		redirectHome(w, r, notice)
	}
}

func handleThemeForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.ToggleTheme()
		redirectHome(w, r, "")
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/"
	if notice != "" {
		target += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
