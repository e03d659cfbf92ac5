// Package persist maps the application's three persisted fields onto named
// JSON slots of a key-value store.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/stylelens/internal/look"
	"github.com/kalambet/stylelens/internal/storage"
)

// Slot names. These match the keys used by earlier browser builds so exported
// data stays interchangeable.
const (
	KeyWardrobe = "stylelens_wardrobe"
	KeyHistory  = "stylelens_history"
	KeyTheme    = "stylelens_theme"
)

// SlotStore is the raw key-value backend. Implemented by storage.Store.
// GetSlot must return storage.ErrNotFound for an absent key.
type SlotStore interface {
	GetSlot(key string) (string, error)
	SetSlot(key, value string) error
}

// Adapter reads and writes JSON values in named slots.
type Adapter struct {
	store SlotStore
}

// New returns an Adapter over store.
func New(store SlotStore) *Adapter {
	return &Adapter{store: store}
}

// Load decodes the JSON held in slot key into a value of type T. The default
// is returned when the slot is absent, unreadable or holds malformed JSON.
func Load[T any](a *Adapter, key string, def T) T {
	raw, err := a.store.GetSlot(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("reading slot failed, using default", "key", key, "error", err)
		}
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Debug("malformed slot treated as absent", "key", key, "error", err)
		return def
	}
	return v
}

// Save serializes value and overwrites slot key.
func (a *Adapter) Save(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding slot %s: %w", key, err)
	}
	if err := a.store.SetSlot(key, string(b)); err != nil {
		return fmt.Errorf("writing slot %s: %w", key, err)
	}
	return nil
}

// Snapshot is the persisted subset of the application state.
type Snapshot struct {
	Wardrobe []look.WardrobeItem
	History  []string
	Theme    look.Theme
}

// LoadSnapshot reads all three slots, substituting defaults as needed.
func (a *Adapter) LoadSnapshot() Snapshot {
	s := Snapshot{
		Wardrobe: Load(a, KeyWardrobe, []look.WardrobeItem{}),
		History:  Load(a, KeyHistory, []string{}),
		Theme:    a.LoadTheme(),
	}
	if s.Wardrobe == nil {
		s.Wardrobe = []look.WardrobeItem{}
	}
	if s.History == nil {
		s.History = []string{}
	}
	return s
}

// LoadTheme reads the theme slot. Both a bare JSON string ("dark") and an
// object with a theme field ({"theme":"dark"}) are accepted; anything else
// yields light.
func (a *Adapter) LoadTheme() look.Theme {
	raw := Load(a, KeyTheme, json.RawMessage(nil))
	if len(raw) == 0 {
		return look.ThemeLight
	}

	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		var obj struct {
			Theme string `json:"theme"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return look.ThemeLight
		}
		name = obj.Theme
	}

	t := look.Theme(strings.ToLower(name))
	if !t.Valid() {
		return look.ThemeLight
	}
	return t
}

// SaveWardrobe writes the wardrobe slot.
func (a *Adapter) SaveWardrobe(items []look.WardrobeItem) error {
	if items == nil {
		items = []look.WardrobeItem{}
	}
	return a.Save(KeyWardrobe, items)
}

// SaveHistory writes the history slot.
func (a *Adapter) SaveHistory(history []string) error {
	if history == nil {
		history = []string{}
	}
	return a.Save(KeyHistory, history)
}

// SaveTheme writes the theme slot as a bare JSON string.
func (a *Adapter) SaveTheme(t look.Theme) error {
	return a.Save(KeyTheme, string(t))
}
