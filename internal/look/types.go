// Package look holds the value types shared by the analysis client, the
// application store and the view layer.
package look

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source is a single web page the analysis service grounded its answer on.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Host returns the source's hostname with a leading "www." removed, or the
// raw URI when it does not parse.
func (s Source) Host() string {
	u, err := url.Parse(s.URI)
	if err != nil || u.Hostname() == "" {
		return s.URI
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// AnalysisResult is the outcome of one successful analysis call.
type AnalysisResult struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Clone returns a copy that shares no backing arrays with r.
func (r AnalysisResult) Clone() AnalysisResult {
	out := AnalysisResult{Text: r.Text, Sources: make([]Source, len(r.Sources))}
	copy(out.Sources, r.Sources)
	return out
}

// MarshalJSON always emits sources as an array, never null.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type plain AnalysisResult
	p := plain(r)
	if p.Sources == nil {
		p.Sources = []Source{}
	}
	return json.Marshal(p)
}

// WardrobeItem is a saved look. Timestamp is milliseconds since the Unix epoch.
type WardrobeItem struct {
	ID        string         `json:"id"`
	Image     string         `json:"image"`
	Analysis  AnalysisResult `json:"analysis"`
	Timestamp int64          `json:"timestamp"`
}

// SavedAt returns Timestamp as a time.Time.
func (w WardrobeItem) SavedAt() time.Time {
	return time.UnixMilli(w.Timestamp)
}

// Snippet returns at most n runes of the analysis text.
func (w WardrobeItem) Snippet(n int) string {
	r := []rune(w.Analysis.Text)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// View names one of the three mutually exclusive screens.
type View string

const (
	ViewSearch   View = "search"
	ViewFeed     View = "feed"
	ViewWardrobe View = "wardrobe"
)

// Views lists the screens in display order.
var Views = []View{ViewSearch, ViewFeed, ViewWardrobe}

// ParseView validates s.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewSearch, ViewFeed, ViewWardrobe:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q (want search, feed or wardrobe)", s)
}

// Theme is the colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// DescribeImage shortens a data URI to its media type and payload size.
// Anything else is returned as is.
func DescribeImage(img string) string {
	if !strings.HasPrefix(img, "data:") {
		return img
	}
	header, payload, ok := strings.Cut(img, ",")
	if !ok {
		return "data:"
	}
	return fmt.Sprintf("%s (%d bytes base64)", header, len(payload))
}
