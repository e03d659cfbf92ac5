// Package app holds the application state and the operations that change it.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/stylelens/internal/fetch"
	"github.com/kalambet/stylelens/internal/gemini"
	"github.com/kalambet/stylelens/internal/look"
	"github.com/kalambet/stylelens/internal/persist"
)

// HistoryLimit is the number of recent scans kept.
const HistoryLimit = 5

var (
	// ErrNothingToSave and ErrAlreadySaved are notices: the save was a no-op.
	ErrNothingToSave = errors.New("nothing to save yet: analyze a look first")
	ErrAlreadySaved  = errors.New("this look is already in your wardrobe")

	ErrNotFound    = errors.New("not found")
	ErrNoImage     = errors.New("no image provided")
	ErrSuperseded  = errors.New("superseded by a newer request")
	ErrInvalidView = errors.New("invalid view")
)

// IsNotice reports whether err is a user-facing notice rather than a failure.
func IsNotice(err error) bool {
	return errors.Is(err, ErrNothingToSave) || errors.Is(err, ErrAlreadySaved)
}

// Analyzer describes an image. Implemented by gemini.Client.
type Analyzer interface {
	Analyze(ctx context.Context, image string) (look.AnalysisResult, error)
}

// Fetcher downloads an image URL as a data URI. Implemented by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Persister loads and saves the persisted fields. Implemented by persist.Adapter.
type Persister interface {
	LoadSnapshot() persist.Snapshot
	SaveWardrobe([]look.WardrobeItem) error
	SaveHistory([]string) error
	SaveTheme(look.Theme) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type startHookKey struct{}

// WithStartHook returns a context that makes Upload, FetchByURL and
// RescanHistory call fn once the state shows the attempt as loading. fn may
// be called more than once.
func WithStartHook(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, startHookKey{}, fn)
}

func notifyStarted(ctx context.Context) {
	if fn, ok := ctx.Value(startHookKey{}).(func()); ok {
		fn()
	}
}

// State is a point-in-time copy of the application state.
type State struct {
	CurrentImage  string               `json:"currentImage"`
	IsLoading     bool                 `json:"isLoading"`
	CurrentResult *look.AnalysisResult `json:"currentResult"`
	CurrentError  string               `json:"currentError,omitempty"`
	ActiveView    look.View            `json:"activeView"`
	Wardrobe      []look.WardrobeItem  `json:"wardrobe"`
	History       []string             `json:"history"`
	Theme         look.Theme           `json:"theme"`
}

func (s State) clone() State {
	out := s
	if s.CurrentResult != nil {
		r := s.CurrentResult.Clone()
		out.CurrentResult = &r
	}
	out.Wardrobe = make([]look.WardrobeItem, len(s.Wardrobe))
	for i, w := range s.Wardrobe {
		w.Analysis = w.Analysis.Clone()
		out.Wardrobe[i] = w
	}
	out.History = append([]string{}, s.History...)
	return out
}

// Deps holds the collaborators of a Store. Fetcher, Clock and NewID are optional.
type Deps struct {
	Analyzer  Analyzer
	Fetcher   Fetcher
	Persister Persister
	Clock     Clock
	NewID     func() string
}

// Store owns the single application state. All methods are safe for
// concurrent use; the lock is never held across a network call.
type Store struct {
	analyzer  Analyzer
	fetcher   Fetcher
	persister Persister
	clock     Clock
	newID     func() string

	mu    sync.Mutex
	state State
	// generation identifies the newest analysis attempt. Completions from
	// older attempts are discarded.
	generation uint64
}

// New creates a Store rehydrated from deps.Persister.
func New(deps Deps) *Store {
	s := &Store{
		analyzer:  deps.Analyzer,
		fetcher:   deps.Fetcher,
		persister: deps.Persister,
		clock:     deps.Clock,
		newID:     deps.NewID,
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.fetcher == nil {
		s.fetcher = fetch.New(nil)
	}

	snap := s.persister.LoadSnapshot()
	s.state = State{
		ActiveView: look.ViewSearch,
		Wardrobe:   uniqueWardrobe(snap.Wardrobe),
		History:    normalizeHistory(snap.History),
		Theme:      snap.Theme,
	}
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Upload records image in history and analyzes it. It returns the result
// of this attempt, or the analysis failure (also stored as CurrentError), or
// ErrSuperseded when a newer attempt started before this one finished.
func (s *Store) Upload(ctx context.Context, image string) (look.AnalysisResult, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return look.AnalysisResult{}, ErrNoImage
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.beginUpload(image)
	s.mu.Unlock()
	notifyStarted(ctx)

	return s.analyze(ctx, gen, image)
}

// FetchByURL downloads url and then behaves as Upload with the result. A
// failed download sets CurrentError to fetch.UserMessage and is not retried.
func (s *Store) FetchByURL(ctx context.Context, url string) (look.AnalysisResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return look.AnalysisResult{}, ErrNoImage
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state.ActiveView = look.ViewSearch
	s.state.CurrentResult = nil
	s.state.CurrentError = ""
	s.state.CurrentImage = url
	s.state.IsLoading = true
	s.mu.Unlock()
	notifyStarted(ctx)

	dataURI, err := s.fetcher.Fetch(ctx, url)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return look.AnalysisResult{}, ErrSuperseded
	}
	if err != nil {
		s.state.CurrentError = fetch.UserMessage
		s.state.IsLoading = false
		s.mu.Unlock()
		slog.Warn("image fetch failed", "url", url, "error", err)
		return look.AnalysisResult{}, err
	}
	// Same generation: the download and the analysis are one attempt.
	s.beginUpload(dataURI)
	s.mu.Unlock()

	return s.analyze(ctx, gen, dataURI)
}

// RescanHistory re-uploads the history entry at index.
func (s *Store) RescanHistory(ctx context.Context, index int) (look.AnalysisResult, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.state.History) {
		s.mu.Unlock()
		return look.AnalysisResult{}, ErrNotFound
	}
	image := s.state.History[index]
	s.mu.Unlock()
	return s.Upload(ctx, image)
}

// beginUpload shows image as loading and records it in history. Must be
// called with mu held.
func (s *Store) beginUpload(image string) {
	s.state.ActiveView = look.ViewSearch
	s.state.CurrentResult = nil
	s.state.CurrentError = ""
	s.state.CurrentImage = image
	s.state.History = pushHistory(s.state.History, image)
	s.state.IsLoading = true
	s.saveHistory()
}

// analyze runs the analysis for attempt gen and publishes the outcome unless
// a newer attempt has started.
func (s *Store) analyze(ctx context.Context, gen uint64, image string) (look.AnalysisResult, error) {
	res, err := s.analyzer.Analyze(ctx, image)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		slog.Debug("discarding stale analysis", "generation", gen, "current", s.generation)
		return look.AnalysisResult{}, ErrSuperseded
	}
	s.state.IsLoading = false
	if err != nil {
		s.state.CurrentError = ErrorMessage(err)
		return look.AnalysisResult{}, err
	}
	s.state.CurrentResult = &res
	return res.Clone(), nil
}

// ClearHistory empties the recent scans list.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.History) == 0 {
		return
	}
	s.state.History = []string{}
	s.saveHistory()
}

// SaveToWardrobe stores the current image and result as a new wardrobe item.
// It returns ErrNothingToSave or ErrAlreadySaved without changing anything
// when there is no analyzed image or the image is already saved.
func (s *Store) SaveToWardrobe() (look.WardrobeItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentImage == "" || s.state.CurrentResult == nil {
		return look.WardrobeItem{}, ErrNothingToSave
	}
	for _, w := range s.state.Wardrobe {
		if w.Image == s.state.CurrentImage {
			return look.WardrobeItem{}, ErrAlreadySaved
		}
	}

	item := look.WardrobeItem{
		ID:        s.newID(),
		Image:     s.state.CurrentImage,
		Analysis:  s.state.CurrentResult.Clone(),
		Timestamp: s.clock.Now().UnixMilli(),
	}
	s.state.Wardrobe = append([]look.WardrobeItem{item}, s.state.Wardrobe...)
	s.saveWardrobe()
	return item, nil
}

// RemoveFromWardrobe deletes the item with id. It reports whether an item was
// removed; an unknown id is not an error.
func (s *Store) RemoveFromWardrobe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]look.WardrobeItem, 0, len(s.state.Wardrobe))
	for _, w := range s.state.Wardrobe {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(s.state.Wardrobe) {
		return false
	}
	s.state.Wardrobe = kept
	s.saveWardrobe()
	return true
}

// OpenWardrobeItem shows a saved item on the search view without
// re-analyzing it. Any in-flight analysis is superseded.
func (s *Store) OpenWardrobeItem(id string) (look.WardrobeItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.state.Wardrobe {
		if w.ID != id {
			continue
		}
		s.generation++
		r := w.Analysis.Clone()
		s.state.CurrentImage = w.Image
		s.state.CurrentResult = &r
		s.state.CurrentError = ""
		s.state.IsLoading = false
		s.state.ActiveView = look.ViewSearch
		w.Analysis = w.Analysis.Clone()
		return w, nil
	}
	return look.WardrobeItem{}, ErrNotFound
}

// SwitchView makes v the active view.
func (s *Store) SwitchView(v look.View) error {
	pv, err := look.ParseView(string(v))
	if err != nil {
		return errors.Join(ErrInvalidView, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveView = pv
	return nil
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Store) ToggleTheme() look.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Theme = s.state.Theme.Toggle()
	if err := s.persister.SaveTheme(s.state.Theme); err != nil {
		slog.Warn("persisting theme failed", "error", err)
	}
	return s.state.Theme
}

// saveHistory and saveWardrobe must be called with mu held.

func (s *Store) saveHistory() {
	if err := s.persister.SaveHistory(s.state.History); err != nil {
		slog.Warn("persisting history failed", "error", err)
	}
}

func (s *Store) saveWardrobe() {
	if err := s.persister.SaveWardrobe(s.state.Wardrobe); err != nil {
		slog.Warn("persisting wardrobe failed", "error", err)
	}
}

// pushHistory puts image at the front of history, dropping any earlier copy
// and anything past HistoryLimit.
func pushHistory(history []string, image string) []string {
	out := make([]string, 0, HistoryLimit)
	out = append(out, image)
	for _, h := range history {
		if len(out) == HistoryLimit {
			break
		}
		if h != image {
			out = append(out, h)
		}
	}
	return out
}

// normalizeHistory applies the pushHistory rules to a stored list: the first
// copy of each image is kept, in order, up to HistoryLimit entries.
func normalizeHistory(history []string) []string {
	out := make([]string, 0, HistoryLimit)
	for i := len(history) - 1; i >= 0; i-- {
		if h := strings.TrimSpace(history[i]); h != "" {
			out = pushHistory(out, h)
		}
	}
	return out
}

// uniqueWardrobe drops items whose image is already held by an earlier
// (newer) item.
func uniqueWardrobe(items []look.WardrobeItem) []look.WardrobeItem {
	seen := make(map[string]bool, len(items))
	out := make([]look.WardrobeItem, 0, len(items))
	for _, w := range items {
		if seen[w.Image] {
			continue
		}
		seen[w.Image] = true
		out = append(out, w)
	}
	return out
}

// ErrorMessage returns the user-facing text for an analysis failure, the same
// text stored as CurrentError.
func ErrorMessage(err error) string {
	var ae *gemini.AnalysisError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return gemini.GenericFailure
}
