package registry

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

type memStore struct {
	entries []Entry
	saves   int
	err     error
}

func (m *memStore) Load() ([]Entry, error) {
	return append([]Entry(nil), m.entries...), nil
}

func (m *memStore) Save(entries []Entry) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.entries = append([]Entry(nil), entries...)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soundboard_data.json")
	r, err := Open(NewFileStore(path), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	return r, path
}

func yes(string) bool { return true }
func no(string) bool  { return false }

func assertUniqueHotkeys(t *testing.T, r *Registry) {
	t.Helper()
	seen := map[string]string{}
	for _, e := range r.Entries() {
		if e.Hotkey == "" {
			continue
		}
		if other, ok := seen[e.Hotkey]; ok {
			t.Fatalf("hotkey %s held by both %s and %s", e.Hotkey, other, e.File)
		}
		seen[e.Hotkey] = e.File
	}
}

func TestAddRejectsDuplicateFile(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Add("clip1.wav", ""); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	err := r.Add("clip1.wav", "F1")
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
	if _, ok := r.Owner("F1"); ok {
		t.Error("rejected Add should not claim its hotkey")
	}
}

func TestAddWithTakenHotkey(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Add("clip1.wav", "F1"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	var conflict *HotkeyConflictError
	if err := r.Add("clip2.wav", "f1"); !errors.As(err, &conflict) {
		t.Fatalf("expected HotkeyConflictError, got %v", err)
	}
	if conflict.Owner != "clip1.wav" || conflict.Hotkey != "F1" {
		t.Errorf("unexpected conflict details: %+v", conflict)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestRebindScenario(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Add("clip2.wav", ""); err != nil {
		t.Fatalf("Add clip2 returned error: %v", err)
	}
	if err := r.Add("clip1.wav", ""); err != nil {
		t.Fatalf("Add clip1 returned error: %v", err)
	}
	if err := r.Rebind("clip1.wav", "A"); err != nil {
		t.Fatalf("Rebind clip1 returned error: %v", err)
	}

	err := r.Rebind("clip2.wav", "A")
	if !errors.Is(err, ErrHotkeyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	owner, ok := r.Owner("A")
	if !ok || owner != "clip1.wav" {
		t.Errorf("expected clip1.wav to own A, got %q (%v)", owner, ok)
	}

	clip1, _ := r.Lookup("clip1.wav")
	clip2, _ := r.Lookup("clip2.wav")
	if clip1.Hotkey != "A" {
		t.Errorf("clip1 hotkey changed to %q", clip1.Hotkey)
	}
	if clip2.Hotkey != "" {
		t.Errorf("clip2 hotkey changed to %q", clip2.Hotkey)
	}
	assertUniqueHotkeys(t, r)
}

func TestRebindReleasesOldHotkey(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Add("clip1.wav", "F1")
	r.Add("clip2.wav", "")

	if err := r.Rebind("clip1.wav", "F2"); err != nil {
		t.Fatalf("Rebind returned error: %v", err)
	}
	if _, ok := r.Owner("F1"); ok {
		t.Error("F1 should be released after rebinding")
	}

	// The released key is free for another entry
	if err := r.Rebind("clip2.wav", "F1"); err != nil {
		t.Fatalf("Rebind to released hotkey returned error: %v", err)
	}

	if err := r.Rebind("clip2.wav", ""); err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}
	if _, ok := r.Owner("F1"); ok {
		t.Error("F1 should be released after unbinding")
	}
	assertUniqueHotkeys(t, r)
}

func TestRebindSameHotkeyIsNoop(t *testing.T) {
	store := &memStore{}
	r := New(store, zerolog.Nop())

	r.Add("clip1.wav", "F1")
	saves := store.saves

	if err := r.Rebind("clip1.wav", "f1"); err != nil {
		t.Fatalf("Rebind returned error: %v", err)
	}
	if store.saves != saves {
		t.Errorf("expected no save for a no-op rebind, got %d extra", store.saves-saves)
	}
}

func TestRebindErrors(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Add("clip1.wav", "")

	if err := r.Rebind("missing.wav", "F1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
	if err := r.Rebind("clip1.wav", "Ctrl+"); err == nil {
		t.Error("expected error for invalid hotkey")
	}
}

func TestHotkeyUniquenessUnderMutations(t *testing.T) {
	r, _ := newTestRegistry(t)
	files := []string{"a.wav", "b.wav", "c.wav", "d.wav"}
	hotkeys := []string{"F1", "F2", "F1", "", "F2", "F3", "F1"}

	for _, f := range files {
		r.Add(f, "")
	}
	for i := 0; i < 40; i++ {
		_ = r.Rebind(files[i%len(files)], hotkeys[i%len(hotkeys)])
		assertUniqueHotkeys(t, r)
	}
}

func TestRoundTrip(t *testing.T) {
	entries := []Entry{
		{File: "audio_files/aB3dE5gH7j.wav", Hotkey: "F1"},
		{File: "audio_files/Zz9yY8xX7w.wav", Hotkey: ""},
		{File: "audio_files/Qq1wW2eE3r.wav", Hotkey: "Ctrl+Shift+A", Output: &Output{Name: "Speakers", Index: 3}},
	}

	data, err := Encode(entries)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, entries)
	}
}

func TestRoundTripEmpty(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if string(data) != "[]\n" {
		t.Errorf("expected empty array, got %q", data)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(got) != 0 || got == nil {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestLoadsOriginalSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundboard_data.json")
	data := `[{"file": "audio_files/abc.wav", "hotkey": "A"}, {"file": "audio_files/def.wav", "hotkey": ""}, {"file": "audio_files/ghi.wav", "hotkey": "*"}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(NewFileStore(path), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	want := []Entry{
		{File: "audio_files/abc.wav", Hotkey: "A"},
		{File: "audio_files/def.wav", Hotkey: ""},
		{File: "audio_files/ghi.wav", Hotkey: "Shift+8"},
	}
	if got := r.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected entries: %+v", got)
	}
	if owner, ok := r.Owner("*"); !ok || owner != "audio_files/ghi.wav" {
		t.Errorf("symbol hotkey lost on load: owner %q, %v", owner, ok)
	}
}

func TestLoadRepairsConflicts(t *testing.T) {
	store := &memStore{entries: []Entry{
		{File: "a.wav", Hotkey: "f1"},
		{File: "b.wav", Hotkey: "F1"},
		{File: "a.wav", Hotkey: "F2"},
		{File: "", Hotkey: "F3"},
		{File: "c.wav", Hotkey: "NotAKey"},
	}}

	r, err := Open(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	want := []Entry{
		{File: "a.wav", Hotkey: "F1"},
		{File: "b.wav", Hotkey: ""},
		{File: "c.wav", Hotkey: ""},
	}
	if got := r.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected entries:\n got  %+v\n want %+v", got, want)
	}
}

func TestPersistsEveryMutation(t *testing.T) {
	r, path := newTestRegistry(t)

	r.Add("clip1.wav", "")
	r.Rebind("clip1.wav", "F4")
	r.SetOutput("clip1.wav", &Output{Name: "Headphones", Index: 2})

	reopened, err := Open(NewFileStore(path), zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	want := []Entry{{File: "clip1.wav", Hotkey: "F4", Output: &Output{Name: "Headphones", Index: 2}}}
	if got := reopened.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected entries after reopen: %+v", got)
	}

	r.SetOutput("clip1.wav", nil)
	reopened.Load()
	if e, _ := reopened.Lookup("clip1.wav"); e.Output != nil {
		t.Errorf("expected default output after reset, got %+v", e.Output)
	}
}

func TestDelete(t *testing.T) {
	r, path := newTestRegistry(t)

	audio := filepath.Join(filepath.Dir(path), "clip1.wav")
	if err := os.WriteFile(audio, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	r.Add(audio, "F1")
	r.Add("other.wav", "")

	if err := r.Delete(audio, no); !errors.Is(err, ErrDeleteDeclined) {
		t.Fatalf("expected ErrDeleteDeclined, got %v", err)
	}
	if _, err := os.Stat(audio); err != nil {
		t.Fatalf("declined delete removed the file: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("declined delete changed the registry")
	}

	if err := r.Delete(audio, yes); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := os.Stat(audio); !os.IsNotExist(err) {
		t.Errorf("expected backing file to be removed, stat err = %v", err)
	}
	if _, ok := r.Owner("F1"); ok {
		t.Error("deleted entry still owns F1")
	}

	// Restart: the deleted file must not come back
	reopened, err := Open(NewFileStore(path), zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if _, ok := reopened.Lookup(audio); ok {
		t.Error("deleted entry present after reload")
	}
	if reopened.Len() != 1 {
		t.Errorf("expected 1 entry after reload, got %d", reopened.Len())
	}
}

func TestDeleteMissingBackingFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Add("never-written.wav", "F9")

	if err := r.Delete("never-written.wav", yes); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}
}

func TestDeleteStorageFailureKeepsEntry(t *testing.T) {
	r := New(&memStore{}, zerolog.Nop())
	r.remove = func(string) error { return os.ErrPermission }
	r.Add("locked.wav", "F1")

	if err := r.Delete("locked.wav", yes); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, ok := r.Lookup("locked.wav"); !ok {
		t.Error("entry removed despite storage failure")
	}
}

func TestDeleteUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	called := false
	err := r.Delete("nope.wav", func(string) bool { called = true; return true })
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
	if called {
		t.Error("confirm should not be asked for an unknown entry")
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	r := New(store, zerolog.Nop())

	if err := r.Add("clip.wav", ""); err == nil {
		t.Error("expected save error to be returned")
	}
}

func TestFailedSaveLeavesRegistryUnchanged(t *testing.T) {
	store := &memStore{}
	r := New(store, zerolog.Nop())
	if err := r.Add("clip1.wav", "F1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("clip2.wav", ""); err != nil {
		t.Fatal(err)
	}
	before := r.Entries()

	store.err = errors.New("disk full")
	r.remove = func(string) error { return nil }

	steps := []struct {
		name string
		fn   func() error
	}{
		{"add", func() error { return r.Add("clip3.wav", "F3") }},
		{"rebind", func() error { return r.Rebind("clip1.wav", "F2") }},
		{"unbind", func() error { return r.Rebind("clip1.wav", "") }},
		{"bind", func() error { return r.Rebind("clip2.wav", "F4") }},
		{"output", func() error { return r.SetOutput("clip2.wav", &Output{Name: "Speakers", Index: 1}) }},
		{"delete", func() error { return r.Delete("clip1.wav", yes) }},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := step.fn(); err == nil {
				t.Fatal("expected save error to be returned")
			}
			if got := r.Entries(); !reflect.DeepEqual(got, before) {
				t.Errorf("entries changed after failed save:\n got %+v\nwant %+v", got, before)
			}
			if owner, ok := r.Owner("F1"); !ok || owner != "clip1.wav" {
				t.Errorf("F1 owner = %q, %v; want clip1.wav", owner, ok)
			}
			for _, hk := range []string{"F2", "F3", "F4"} {
				if owner, ok := r.Owner(hk); ok {
					t.Errorf("%s claimed by %q after failed save", hk, owner)
				}
			}
		})
	}

	// Once the store recovers the same operations go through
	store.err = nil
	if err := r.Add("clip3.wav", "F3"); err != nil {
		t.Errorf("retried Add returned error: %v", err)
	}
	if err := r.Rebind("clip1.wav", "F2"); err != nil {
		t.Errorf("retried Rebind returned error: %v", err)
	}
	if got := store.entries; len(got) != 3 || got[0].Hotkey != "F2" {
		t.Errorf("unexpected persisted entries %+v", got)
	}
}

func TestReloadIgnoresOwnWrites(t *testing.T) {
	r, path := newTestRegistry(t)
	r.Add("clip1.wav", "F1")

	changed, err := r.Reload()
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if changed {
		t.Error("Reload reported a change for the registry's own write")
	}

	external := `[{"file": "clip1.wav", "hotkey": "F2"}]`
	if err := os.WriteFile(path, []byte(external), 0644); err != nil {
		t.Fatal(err)
	}

	changed, err = r.Reload()
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if !changed {
		t.Fatal("Reload missed an external edit")
	}
	if owner, _ := r.Owner("F2"); owner != "clip1.wav" {
		t.Errorf("expected clip1.wav to own F2 after reload, got %q", owner)
	}
}
