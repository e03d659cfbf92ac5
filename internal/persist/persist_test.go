package persist

import (
	"errors"
	"testing"

	"github.com/kalambet/stylelens/internal/look"
	"github.com/kalambet/stylelens/internal/storage"
)

// mockSlots is an in-memory SlotStore.
type mockSlots struct {
	data   map[string]string
	getErr error
	setErr error
}

func newMockSlots(init map[string]string) *mockSlots {
	m := &mockSlots{data: make(map[string]string)}
	for k, v := range init {
		m.data[k] = v
	}
	return m
}

func (m *mockSlots) GetSlot(key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockSlots) SetSlot(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func TestLoadTheme(t *testing.T) {
	tests := []struct {
		name  string
		slots map[string]string
		want  look.Theme
	}{
		{"absent", nil, look.ThemeLight},
		{"bare string", map[string]string{KeyTheme: `"dark"`}, look.ThemeDark},
		{"object", map[string]string{KeyTheme: `{"theme":"dark"}`}, look.ThemeDark},
		{"corrupt", map[string]string{KeyTheme: `{"theme":`}, look.ThemeLight},
		{"unknown value", map[string]string{KeyTheme: `"sepia"`}, look.ThemeLight},
		{"wrong type", map[string]string{KeyTheme: `42`}, look.ThemeLight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(newMockSlots(tt.slots))
			if got := a.LoadTheme(); got != tt.want {
				t.Errorf("LoadTheme() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadSnapshotDefaults(t *testing.T) {
	a := New(newMockSlots(nil))
	s := a.LoadSnapshot()

	if s.Wardrobe == nil || len(s.Wardrobe) != 0 {
		t.Errorf("Wardrobe = %v, want empty non-nil", s.Wardrobe)
	}
	if s.History == nil || len(s.History) != 0 {
		t.Errorf("History = %v, want empty non-nil", s.History)
	}
	if s.Theme != look.ThemeLight {
		t.Errorf("Theme = %q, want light", s.Theme)
	}
}

func TestLoadSnapshotCorruptLists(t *testing.T) {
	a := New(newMockSlots(map[string]string{
		KeyWardrobe: `[{"id":`,
		KeyHistory:  `not json`,
	}))
	s := a.LoadSnapshot()
	if len(s.Wardrobe) != 0 {
		t.Errorf("Wardrobe = %v, want empty", s.Wardrobe)
	}
	if len(s.History) != 0 {
		t.Errorf("History = %v, want empty", s.History)
	}
}

func TestLoadSnapshotNullLists(t *testing.T) {
	a := New(newMockSlots(map[string]string{
		KeyWardrobe: `null`,
		KeyHistory:  `null`,
	}))
	s := a.LoadSnapshot()
	if s.Wardrobe == nil || s.History == nil {
		t.Error("null slots should load as empty, non-nil lists")
	}
}

func TestLoadBackendErrorUsesDefault(t *testing.T) {
	m := newMockSlots(map[string]string{KeyTheme: `"dark"`})
	m.getErr = errors.New("disk on fire")
	a := New(m)
	if got := a.LoadTheme(); got != look.ThemeLight {
		t.Errorf("LoadTheme() = %q, want light", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	m := newMockSlots(nil)
	a := New(m)

	items := []look.WardrobeItem{{
		ID:        "w1",
		Image:     "data:image/jpeg;base64,AAA",
		Analysis:  look.AnalysisResult{Text: "3 items found", Sources: []look.Source{{URI: "https://shop.example/a", Title: "Jacket"}}},
		Timestamp: 1700000000000,
	}}
	if err := a.SaveWardrobe(items); err != nil {
		t.Fatalf("SaveWardrobe: %v", err)
	}
	if err := a.SaveHistory([]string{"img-1", "img-2"}); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if err := a.SaveTheme(look.ThemeDark); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}

	if m.data[KeyTheme] != `"dark"` {
		t.Errorf("theme slot = %q, want %q", m.data[KeyTheme], `"dark"`)
	}

	s := New(m).LoadSnapshot()
	if len(s.Wardrobe) != 1 || s.Wardrobe[0].ID != "w1" {
		t.Fatalf("Wardrobe = %+v", s.Wardrobe)
	}
	if s.Wardrobe[0].Analysis.Sources[0].Title != "Jacket" {
		t.Errorf("source title = %q", s.Wardrobe[0].Analysis.Sources[0].Title)
	}
	if len(s.History) != 2 || s.History[0] != "img-1" {
		t.Errorf("History = %v", s.History)
	}
	if s.Theme != look.ThemeDark {
		t.Errorf("Theme = %q", s.Theme)
	}
}

func TestSaveNilListsWritesEmptyArray(t *testing.T) {
	m := newMockSlots(nil)
	a := New(m)
	if err := a.SaveHistory(nil); err != nil {
		t.Fatal(err)
	}
	if m.data[KeyHistory] != "[]" {
		t.Errorf("history slot = %q, want []", m.data[KeyHistory])
	}
}

func TestSaveBackendError(t *testing.T) {
	m := newMockSlots(nil)
	m.setErr = errors.New("read-only")
	if err := New(m).SaveTheme(look.ThemeDark); err == nil {
		t.Fatal("expected error")
	}
}

func TestAdapterOverSQLite(t *testing.T) {
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.SetSlot(KeyTheme, `{"theme":"dark"}`); err != nil {
		t.Fatal(err)
	}
	if got := New(s).LoadTheme(); got != look.ThemeDark {
		t.Errorf("LoadTheme() = %q, want dark", got)
	}
}
