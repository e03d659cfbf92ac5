package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/kalambet/stylelens/internal/app"
	"github.com/kalambet/stylelens/internal/look"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	policy       *bluemonday.Policy
)

func markdownRenderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		)
		policy = bluemonday.UGCPolicy()
		policy.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return markdown, policy
}

// renderMarkdown converts analysis text to sanitized HTML. The service
// output is untrusted, so raw HTML in it never reaches the page.
func renderMarkdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	md, p := markdownRenderer()
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(p.SanitizeBytes(buf.Bytes()))
}

// imageSrc allows data:image URIs and http(s) URLs as <img src>.
// html/template would otherwise replace data URIs with a placeholder.
func imageSrc(s string) template.URL {
	switch {
	case strings.HasPrefix(s, "data:image/"),
		strings.HasPrefix(s, "https://"),
		strings.HasPrefix(s, "http://"):
		return template.URL(s)
	}
	return ""
}

var notices = map[string]string{
	"saved":           "Look saved to your wardrobe.",
	"already-saved":   "This look is already in your wardrobe.",
	"nothing-to-save": "Analyze a look before saving it.",
	"removed":         "Look removed from your wardrobe.",
	"not-image":       "That file is not an image.",
}

// noticeCode maps a save outcome to the notice shown after the redirect.
func noticeCode(err error) string {
	switch {
	case err == nil:
		return "saved"
	case errors.Is(err, app.ErrAlreadySaved):
		return "already-saved"
	case errors.Is(err, app.ErrNothingToSave):
		return "nothing-to-save"
	}
	return ""
}

type pages struct {
	index *template.Template
}

func newPages() *pages {
	funcs := template.FuncMap{
		"markdown": renderMarkdown,
		"imgsrc":   imageSrc,
	}
	return &pages{
		index: template.Must(template.New("index.html").Funcs(funcs).ParseFS(templateFS, "templates/index.html")),
	}
}

type indexData struct {
	State  app.State
	Views  []look.View
	Looks  []feedLook
	Tip    string
	Notice string
}

type feedLook struct {
	URL  string
	Tags string
}

func (p *pages) renderIndex(w io.Writer, data indexData) error {
	return p.index.Execute(w, data)
}
