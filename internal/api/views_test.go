package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/kalambet/stylelens/internal/look"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func multipartUpload(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func postForm(env *testEnv, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func getIndex(t *testing.T, env *testEnv, query string) string {
	t.Helper()
	rr := env.do(t, http.MethodGet, "/"+query, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	return rr.Body.String()
}

func assertRedirect(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != want {
		t.Errorf("Location = %q, want %q", loc, want)
	}
}

func TestIndex_EmptySearchView(t *testing.T) {
	env := newTestEnv(t, "")
	body := getIndex(t, env, "")

	if !strings.Contains(body, `<body class="light">`) {
		t.Error("theme class missing")
	}
	if !strings.Contains(body, `id="search"`) {
		t.Error("search view not rendered")
	}
	if strings.Contains(body, `id="feed"`) || strings.Contains(body, `id="wardrobe"`) {
		t.Error("only one view should render")
	}
	if strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("idle page should not auto-refresh")
	}
}

func TestUploadForm(t *testing.T) {
	env := newTestEnv(t, "")
	env.analyzer.result = look.AnalysisResult{
		Text:    "**Denim jacket**\n\n<script>alert(1)</script>",
		Sources: []look.Source{{URI: "https://www.shop.example/a", Title: ""}},
	}

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "look.png", "application/octet-stream", pngHeader))
	assertRedirect(t, rr, "/")
	env.bg.wait()

	st := env.store.Snapshot()
	if !strings.HasPrefix(st.CurrentImage, "data:image/png;base64,") {
		t.Errorf("CurrentImage = %.40q", st.CurrentImage)
	}

	body := getIndex(t, env, "")
	if !strings.Contains(body, "<strong>Denim jacket</strong>") {
		t.Error("markdown not rendered")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("script from analysis text reached the page")
	}
	if !strings.Contains(body, "shop.example") || strings.Contains(body, ">www.shop.example<") {
		t.Error("source should be labelled by host without www.")
	}
	if !strings.Contains(body, `src="data:image/png;base64,`) {
		t.Error("data URI image not rendered")
	}
	if !strings.Contains(body, `action="/wardrobe"`) {
		t.Error("save button missing")
	}
	if !strings.Contains(body, "Recent scans") {
		t.Error("history missing")
	}
}

func TestUploadForm_NotImage(t *testing.T) {
	env := newTestEnv(t, "")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "notes.txt", "text/plain", []byte("hello")))
	assertRedirect(t, rr, "/?notice=not-image")

	if h := env.store.Snapshot().History; len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestUploadForm_MissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	rr := postForm(env, "/upload", url.Values{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestIndex_LoadingRefreshesWithTip(t *testing.T) {
	env := newTestEnv(t, "")
	env.analyzer.gate = make(chan struct{})

	env.do(t, http.MethodPost, "/api/analyze", `{"image":"`+testImage+`"}`)
	if !env.store.Snapshot().IsLoading {
		t.Fatal("state should show loading as soon as the request returns")
	}

	body := getIndex(t, env, "")
	if !strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("loading page should auto-refresh")
	}
	if !strings.Contains(body, "Stylist tip:") {
		t.Error("stylist tip missing while loading")
	}
	close(env.analyzer.gate)
	env.bg.wait()
}

func TestIndex_Error(t *testing.T) {
	env := newTestEnv(t, "")
	env.analyzer.err = errors.New("quota exceeded")
	env.store.Upload(context.Background(), testImage)

	body := getIndex(t, env, "")
	if !strings.Contains(body, `<p class="error">quota exceeded</p>`) {
		t.Error("error message not rendered")
	}
}

func TestAnalyzeURLForm(t *testing.T) {
	env := newTestEnv(t, "")
	rr := postForm(env, "/analyze-url", url.Values{"url": {"https://images.example/a.jpg"}})
	assertRedirect(t, rr, "/")
	env.bg.wait()

	if got := env.store.Snapshot().CurrentImage; got != testImage {
		t.Errorf("CurrentImage = %q", got)
	}

	if rr := postForm(env, "/analyze-url", url.Values{}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty url status = %d, want 400", rr.Code)
	}
}

func TestViewForm(t *testing.T) {
	env := newTestEnv(t, "")

	assertRedirect(t, postForm(env, "/view/feed", nil), "/")
	body := getIndex(t, env, "")
	if !strings.Contains(body, `id="feed"`) {
		t.Fatal("feed view not rendered")
	}
	if !strings.Contains(body, `value="https://images.unsplash.com/`) {
		t.Error("feed looks missing")
	}

	assertRedirect(t, postForm(env, "/view/wardrobe", nil), "/")
	body = getIndex(t, env, "")
	if !strings.Contains(body, "Your wardrobe is empty.") {
		t.Error("empty wardrobe message missing")
	}

	if rr := postForm(env, "/view/closet", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown view status = %d, want 404", rr.Code)
	}
}

func TestSaveForm_Notices(t *testing.T) {
	env := newTestEnv(t, "")

	assertRedirect(t, postForm(env, "/wardrobe", nil), "/?notice=nothing-to-save")

	env.store.Upload(context.Background(), testImage)
	assertRedirect(t, postForm(env, "/wardrobe", nil), "/?notice=saved")
	assertRedirect(t, postForm(env, "/wardrobe", nil), "/?notice=already-saved")

	body := getIndex(t, env, "?notice=already-saved")
	if !strings.Contains(body, "This look is already in your wardrobe.") {
		t.Error("notice not rendered")
	}
	if body := getIndex(t, env, "?notice=bogus"); strings.Contains(body, `class="notice"`) {
		t.Error("unknown notice code should render nothing")
	}
}

func TestWardrobeForms(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.Upload(context.Background(), testImage)
	item, err := env.store.SaveToWardrobe()
	if err != nil {
		t.Fatal(err)
	}
	env.store.SwitchView(look.ViewWardrobe)

	body := getIndex(t, env, "")
	if !strings.Contains(body, "/wardrobe/"+item.ID+"/open") {
		t.Error("open action missing")
	}
	if !strings.Contains(body, item.SavedAt().Format("Jan 2, 2006")) {
		t.Error("saved date missing")
	}

	assertRedirect(t, postForm(env, "/wardrobe/"+item.ID+"/open", nil), "/")
	if got := env.store.Snapshot().ActiveView; got != look.ViewSearch {
		t.Errorf("ActiveView = %q, want search", got)
	}
	if rr := postForm(env, "/wardrobe/missing/open", nil); rr.Code != http.StatusNotFound {
		t.Errorf("open unknown = %d, want 404", rr.Code)
	}

	assertRedirect(t, postForm(env, "/wardrobe/missing/delete", nil), "/")
	assertRedirect(t, postForm(env, "/wardrobe/"+item.ID+"/delete", nil), "/?notice=removed")
	if n := len(env.store.Snapshot().Wardrobe); n != 0 {
		t.Errorf("wardrobe len = %d", n)
	}
}

func TestThemeForm(t *testing.T) {
	env := newTestEnv(t, "")
	assertRedirect(t, postForm(env, "/theme", nil), "/")
	if body := getIndex(t, env, ""); !strings.Contains(body, `<body class="dark">`) {
		t.Error("dark theme class missing")
	}
}

func TestRescanForm(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.Upload(context.Background(), "data:image/png;base64,AAAA")
	env.store.Upload(context.Background(), testImage)

	assertRedirect(t, postForm(env, "/history/1", nil), "/")
	env.bg.wait()
	if got := env.store.Snapshot().CurrentImage; got != "data:image/png;base64,AAAA" {
		t.Errorf("CurrentImage = %q", got)
	}

	for _, idx := range []string{"5", "-1", "x"} {
		if rr := postForm(env, "/history/"+idx, nil); rr.Code != http.StatusNotFound {
			t.Errorf("/history/%s status = %d, want 404", idx, rr.Code)
		}
	}
}

func TestForms_RejectCrossOrigin(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.Upload(context.Background(), testImage)
	item, err := env.store.SaveToWardrobe()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"cross-site fetch metadata", map[string]string{"Sec-Fetch-Site": "cross-site"}, http.StatusForbidden},
		{"same-site fetch metadata", map[string]string{"Sec-Fetch-Site": "same-site"}, http.StatusForbidden},
		{"foreign origin", map[string]string{"Origin": "https://evil.example"}, http.StatusForbidden},
		{"same origin", map[string]string{"Sec-Fetch-Site": "same-origin", "Origin": "http://example.com"}, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/theme", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/wardrobe/"+item.ID+"/delete", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("cross-origin delete status = %d, want 403", rr.Code)
	}
	if n := len(env.store.Snapshot().Wardrobe); n != 1 {
		t.Errorf("wardrobe len = %d after rejected delete, want 1", n)
	}

	// Browser-less clients send neither header.
	assertRedirect(t, postForm(env, "/theme", nil), "/")
}
