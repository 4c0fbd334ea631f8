package scheduler

import (
	"sort"
	"time"

	"github.com/tbaudier/overseer/internal/storage/dirstore"
)

// Store persists schedule entries as directories with meta.json.
type Store struct {
	ds *dirstore.DirStore
}

func NewStore(baseDir string) *Store {
	return &Store{ds: dirstore.NewDirStore(baseDir, "schedule")}
}

// Create persists a new schedule entry.
func (s *Store) Create(entry *Entry) error {
	s.ds.Lock()
	defer s.ds.Unlock()

	if entry.ID == "" {
		entry.ID = GenerateScheduleID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.ds.EnsureDir(entry.ID); err != nil {
		return err
	}
	return s.ds.WriteMeta(entry.ID, entry)
}

// Get reads a schedule entry by id.
func (s *Store) Get(id string) (*Entry, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	var entry Entry
	if err := s.ds.ReadMeta(id, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update rewrites an entry's record.
func (s *Store) Update(entry *Entry) error {
	s.ds.Lock()
	defer s.ds.Unlock()
	return s.ds.WriteMeta(entry.ID, entry)
}

// Delete removes a schedule entry.
func (s *Store) Delete(id string) error {
	s.ds.Lock()
	defer s.ds.Unlock()
	return s.ds.RemoveDir(id)
}

// List returns all entries, newest first.
func (s *Store) List() ([]*Entry, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	dirs, err := s.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, name := range dirs {
		var entry Entry
		if err := s.ds.ReadMeta(name, &entry); err != nil {
			continue // skip corrupted entries
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
