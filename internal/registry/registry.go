package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/petems/soundboard/internal/keys"
	"github.com/rs/zerolog"
)

// Output is the playback device chosen for an entry. Name is authoritative;
// Index is a hint used when no device with that name is present, since
// indices shift across restarts and hot-plug.
type Output struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Entry is one recorded sound and its bindings. File is the identity key.
type Entry struct {
	File   string  `json:"file"`
	Hotkey string  `json:"hotkey"`
	Output *Output `json:"output,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Output != nil {
		out := *e.Output
		e.Output = &out
	}
	return e
}

// Confirm asks the user whether file may be deleted from storage.
type Confirm func(file string) bool

// Registry is the ordered set of entries plus the hotkey ownership table.
// Every mutation is written through to the Store.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	owners  map[string]string // normalized hotkey -> file
	store   Store
	log     zerolog.Logger

	remove func(name string) error
}

// New returns an empty registry backed by store. Call Load to read it.
func New(store Store, log zerolog.Logger) *Registry {
	return &Registry{
		owners: make(map[string]string),
		store:  store,
		log:    log,
		remove: os.Remove,
	}
}

// Open returns a registry loaded from store.
func Open(store Store, log zerolog.Logger) (*Registry, error) {
	r := New(store, log)
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the in-memory entries with the store's contents.
// Entries without a file or repeating a file are dropped; invalid hotkeys and
// hotkeys already claimed by an earlier entry are cleared.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() error {
	loaded, err := r.store.Load()
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(loaded))
	owners := make(map[string]string, len(loaded))
	seen := make(map[string]bool, len(loaded))

	for _, e := range loaded {
		if e.File == "" {
			r.log.Warn().Msg("Skipping registry entry without a file")
			continue
		}
		if seen[e.File] {
			r.log.Warn().Str("file", e.File).Msg("Skipping duplicate registry entry")
			continue
		}
		seen[e.File] = true

		hk, err := keys.Normalize(e.Hotkey)
		if err != nil {
			r.log.Warn().Err(err).Str("file", e.File).Str("hotkey", e.Hotkey).Msg("Clearing unparseable hotkey")
			hk = ""
		}
		if hk != "" {
			if owner, taken := owners[hk]; taken {
				r.log.Warn().Str("file", e.File).Str("hotkey", hk).Str("owner", owner).Msg("Clearing hotkey already bound to another sound")
				hk = ""
			} else {
				owners[hk] = e.File
			}
		}

		e.Hotkey = hk
		entries = append(entries, e.clone())
	}

	r.entries = entries
	r.owners = owners

	r.log.Debug().Int("entries", len(entries)).Msg("Loaded registry")
	return nil
}

// changeDetector is implemented by stores that can tell their own writes
// apart from external edits.
type changeDetector interface {
	Changed() (bool, error)
}

// Reload re-reads the store when it was changed by someone else and reports
// whether the entries were replaced.
func (r *Registry) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cd, ok := r.store.(changeDetector); ok {
		changed, err := cd.Changed()
		if err != nil {
			return false, err
		}
		if !changed {
			return false, nil
		}
	}

	if err := r.loadLocked(); err != nil {
		return false, err
	}
	r.log.Info().Int("entries", len(r.entries)).Msg("Reloaded registry after external change")
	return true, nil
}

// Save writes the current entries to the store.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// state is a deep copy of the in-memory tables
type state struct {
	entries []Entry
	owners  map[string]string
}

func (r *Registry) snapshotLocked() state {
	s := state{
		entries: make([]Entry, len(r.entries)),
		owners:  make(map[string]string, len(r.owners)),
	}
	for i, e := range r.entries {
		s.entries[i] = e.clone()
	}
	for k, v := range r.owners {
		s.owners[k] = v
	}
	return s
}

// commitLocked persists the current tables, restoring prev when the store
// rejects the write.
func (r *Registry) commitLocked(prev state) error {
	if err := r.saveLocked(); err != nil {
		r.entries = prev.entries
		r.owners = prev.owners
		return err
	}
	return nil
}

func (r *Registry) saveLocked() error {
	snapshot := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		snapshot[i] = e.clone()
	}
	if err := r.store.Save(snapshot); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	return nil
}

// Add appends a new entry. A file that is already registered is rejected
// with ErrDuplicateEntry.
func (r *Registry) Add(file, hotkey string) error {
	hk, err := keys.Normalize(hotkey)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(file) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, file)
	}
	prev := r.snapshotLocked()
	if hk != "" {
		if owner, taken := r.owners[hk]; taken {
			return &HotkeyConflictError{Hotkey: hk, Owner: owner}
		}
		r.owners[hk] = file
	}

	r.entries = append(r.entries, Entry{File: file, Hotkey: hk})
	if err := r.commitLocked(prev); err != nil {
		return err
	}
	r.log.Info().Str("file", file).Str("hotkey", hk).Msg("Added sound")
	return nil
}

// Rebind assigns hotkey to file, releasing the hotkey file held before.
// An empty hotkey unbinds. A hotkey owned by another entry is rejected with a
// *HotkeyConflictError and nothing changes.
func (r *Registry) Rebind(file, hotkey string) error {
	hk, err := keys.Normalize(hotkey)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(file)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, file)
	}

	old := r.entries[i].Hotkey
	if hk == old {
		return nil
	}
	if hk != "" {
		if owner, taken := r.owners[hk]; taken && owner != file {
			return &HotkeyConflictError{Hotkey: hk, Owner: owner}
		}
	}

	prev := r.snapshotLocked()
	if old != "" {
		delete(r.owners, old)
	}
	if hk != "" {
		r.owners[hk] = file
	}
	r.entries[i].Hotkey = hk
	if err := r.commitLocked(prev); err != nil {
		return err
	}

	r.log.Info().Str("file", file).Str("from", old).Str("to", hk).Msg("Rebound hotkey")
	return nil
}

// Delete removes file from the registry and from storage once confirm
// approves. A backing file that is already gone does not block removal.
func (r *Registry) Delete(file string, confirm Confirm) error {
	r.mu.RLock()
	found := r.indexLocked(file) >= 0
	r.mu.RUnlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, file)
	}

	if confirm == nil || !confirm(file) {
		return ErrDeleteDeclined
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(file)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, file)
	}

	if err := r.remove(file); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", file, err)
		}
		r.log.Warn().Str("file", file).Msg("Sound file already missing from storage")
	}

	prev := r.snapshotLocked()
	if hk := r.entries[i].Hotkey; hk != "" {
		delete(r.owners, hk)
	}
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	if err := r.commitLocked(prev); err != nil {
		return err
	}

	r.log.Info().Str("file", file).Msg("Deleted sound")
	return nil
}

// SetOutput sets the playback device for file. nil selects the default device.
func (r *Registry) SetOutput(file string, out *Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(file)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, file)
	}

	if out != nil {
		o := *out
		out = &o
	}
	prev := r.snapshotLocked()
	r.entries[i].Output = out
	if err := r.commitLocked(prev); err != nil {
		return err
	}

	ev := r.log.Info().Str("file", file)
	if out != nil {
		ev = ev.Str("device", out.Name).Int("index", out.Index)
	} else {
		ev = ev.Str("device", "default")
	}
	ev.Msg("Changed output device")
	return nil
}

// Entries returns a copy of all entries in order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.clone()
	}
	return out
}

// Lookup returns the entry for file.
func (r *Registry) Lookup(file string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexLocked(file)
	if i < 0 {
		return Entry{}, false
	}
	return r.entries[i].clone(), true
}

// Owner returns the file bound to hotkey.
func (r *Registry) Owner(hotkey string) (string, bool) {
	hk, err := keys.Normalize(hotkey)
	if err != nil || hk == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, ok := r.owners[hk]
	return file, ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) indexLocked(file string) int {
	for i, e := range r.entries {
		if e.File == file {
			return i
		}
	}
	return -1
}
