package memory

import (
	"sort"
	"time"

	"github.com/tbaudier/overseer/internal/storage/dirstore"
)

// ToolRecord describes one forged tool known to the system.
type ToolRecord struct {
	Name             string    `json:"name"`
	Domain           string    `json:"domain,omitempty"`
	FilePath         string    `json:"file_path,omitempty"`
	ValidationStatus string    `json:"validation_status,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// KnowledgeStore indexes forged tools, one directory per tool name.
type KnowledgeStore struct {
	store *dirstore.DirStore
}

func NewKnowledgeStore(baseDir string) *KnowledgeStore {
	return &KnowledgeStore{store: dirstore.NewDirStore(baseDir, "tool")}
}

// RegisterTool persists a tool record, overwriting any prior record with the
// same name.
func (s *KnowledgeStore) RegisterTool(rec ToolRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.store.Lock()
	defer s.store.Unlock()

	if err := s.store.EnsureDir(rec.Name); err != nil {
		return err
	}
	return s.store.WriteMeta(rec.Name, rec)
}

// GetTool returns the named tool record, or nil if unknown.
func (s *KnowledgeStore) GetTool(name string) (*ToolRecord, error) {
	s.store.RLock()
	defer s.store.RUnlock()

	if !s.store.Exists(name) {
		return nil, nil
	}
	var rec ToolRecord
	if err := s.store.ReadMeta(name, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ToolsByDomain returns the names of tools registered under a domain, sorted.
func (s *KnowledgeStore) ToolsByDomain(domain string) ([]string, error) {
	s.store.RLock()
	defer s.store.RUnlock()

	names, err := s.store.ListDirs()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		var rec ToolRecord
		if err := s.store.ReadMeta(name, &rec); err != nil {
			continue
		}
		if rec.Domain == domain {
			out = append(out, rec.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}
