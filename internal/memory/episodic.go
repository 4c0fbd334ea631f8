// Package memory holds what the system remembers between requests: an
// episodic log of past interactions, searchable by keyword, and a knowledge
// store of forged tools indexed by domain.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tbaudier/overseer/internal/storage/dirstore"
)

const (
	episodesFile  = "episodes.jsonl"
	defaultDomain = "general"
)

// Record is one remembered episode.
type Record struct {
	MemoryID  string    `json:"memory_id"`
	Summary   string    `json:"summary"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain,omitempty"`
	EventType string    `json:"event_type,omitempty"`
}

// EpisodicStore persists episodes per domain, one JSONL file per domain
// directory, and answers keyword searches over their summaries.
type EpisodicStore struct {
	store *dirstore.DirStore
}

func NewEpisodicStore(baseDir string) *EpisodicStore {
	return &EpisodicStore{store: dirstore.NewDirStore(baseDir, "episode domain")}
}

// Append records one episode under its domain.
func (s *EpisodicStore) Append(rec Record) error {
	domain := rec.Domain
	if domain == "" {
		domain = defaultDomain
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.store.Lock()
	defer s.store.Unlock()

	if err := s.store.EnsureDir(domain); err != nil {
		return err
	}
	return s.store.AppendJSONL(domain, episodesFile, rec)
}

// Search returns up to k records whose summaries match the query's terms,
// best match first, ties broken by recency. An empty domain searches all
// domains. Matching is plain substring containment per term.
func (s *EpisodicStore) Search(_ context.Context, query string, k int, domain string) ([]Record, error) {
	if k <= 0 {
		k = 5
	}
	terms := strings.Fields(strings.ToLower(query))

	s.store.RLock()
	defer s.store.RUnlock()

	var domains []string
	if domain != "" {
		domains = []string{domain}
	} else {
		var err error
		domains, err = s.store.ListDirs()
		if err != nil {
			return nil, err
		}
	}

	type scored struct {
		rec   Record
		score int
	}
	var matches []scored
	for _, d := range domains {
		records, err := dirstore.LoadJSONL[Record](s.store, d, episodesFile)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			score := matchScore(strings.ToLower(rec.Summary), terms)
			if score > 0 {
				matches = append(matches, scored{rec: rec, score: score})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].rec.Timestamp.After(matches[j].rec.Timestamp)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out, nil
}

// matchScore counts how many query terms appear in the summary. A query with
// no terms matches everything with score 1, so bare searches list recents.
func matchScore(summary string, terms []string) int {
	if len(terms) == 0 {
		return 1
	}
	score := 0
	for _, t := range terms {
		if strings.Contains(summary, t) {
			score++
		}
	}
	return score
}
