// Package store persists the set of reservation ids created by the scheduler,
// so that only reservations it made are ever ended automatically.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/clambin/go-common/set"
	"gopkg.in/yaml.v3"
)

const documentVersion = 1

type document struct {
	Version        int      `yaml:"version"`
	ReservationIDs []string `yaml:"reservation_ids"`
}

// Tracker records which reservation ids this instance owns. All methods are
// safe for concurrent use; mutating methods write the backing file before
// returning.
type Tracker struct {
	path string
	lock sync.Mutex
	ids  set.Set[string]
}

func New(path string) *Tracker {
	return &Tracker{path: path, ids: set.Create[string]()}
}

// Load reads the backing file. A missing or unreadable file yields an empty
// set: losing the ownership record must never stop the daemon, it only means
// no reservations are auto-ended until new ones are made.
func (t *Tracker) Load() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.ids = set.Create[string]()
	body, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var doc document
	if err = yaml.Unmarshal(body, &doc); err != nil {
		return
	}
	for _, id := range doc.ReservationIDs {
		if id = strings.TrimSpace(id); id != "" {
			t.ids.Add(id)
		}
	}
}

// Snapshot returns a copy of the owned ids.
func (t *Tracker) Snapshot() set.Set[string] {
	t.lock.Lock()
	defer t.lock.Unlock()
	return set.Create(t.ids.List()...)
}

func (t *Tracker) Contains(id string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.ids.Contains(id)
}

// Add records ownership of a reservation id and saves.
func (t *Tracker) Add(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.ids.Contains(id) {
		return nil
	}
	t.ids.Add(id)
	return t.save()
}

// Remove forgets a reservation id and saves.
func (t *Tracker) Remove(id string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.ids.Contains(id) {
		return nil
	}
	t.ids.Remove(id)
	return t.save()
}

// Discard forgets any number of ids with a single save.
func (t *Tracker) Discard(ids ...string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	var changed bool
	for _, id := range ids {
		if t.ids.Contains(id) {
			t.ids.Remove(id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return t.save()
}

// Retain intersects the owned set with the ids that still exist upstream,
// saving only when something was dropped.
func (t *Tracker) Retain(live set.Set[string]) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	var stale []string
	for _, id := range t.ids.List() {
		if !live.Contains(id) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	for _, id := range stale {
		t.ids.Remove(id)
	}
	return t.save()
}

// save writes the document atomically. caller must hold the lock.
func (t *Tracker) save() error {
	ids := t.ids.List()
	sort.Strings(ids)
	body, err := yaml.Marshal(document{Version: documentVersion, ReservationIDs: ids})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dir := filepath.Dir(t.path)
	if err = os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	_, err = tmp.Write(body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write: %w", err)
	}
	if err = os.Rename(tmp.Name(), t.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
