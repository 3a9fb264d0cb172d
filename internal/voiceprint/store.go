package voiceprint

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is an on-disk JSON-backed collection of voiceprints, one per
// recognized speaker. Adapted from voiceprint.Store
// (atomic write-via-rename, lazy migration).
type Store struct {
	path string
	mu   sync.RWMutex
	data file
}

// NewStore opens (or initializes) the store at dataDir/../speakers.json,
// mirroring placement of speakers.json alongside the
// session data directory rather than inside it.
func NewStore(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "..", "speakers.json")
	s := &Store{path: path, data: file{Version: CurrentVersion}}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("voiceprint: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	if s.data.Version < CurrentVersion {
		s.data.Version = CurrentVersion
		return s.saveLocked()
	}
	return nil
}

func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// All returns a copy of every stored voiceprint.
func (s *Store) All() []Print {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Print, len(s.data.Prints))
	copy(out, s.data.Prints)
	return out
}

// Add appends a new voiceprint and persists the store.
func (s *Store) Add(name string, embedding []float32, source string) (*Print, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p := Print{
		ID:         uuid.New().String(),
		Name:       name,
		Embedding:  append([]float32(nil), embedding...),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
		SeenCount:  1,
		Source:     source,
	}
	s.data.Prints = append(s.data.Prints, p)
	if err := s.saveLocked(); err != nil {
		s.data.Prints = s.data.Prints[:len(s.data.Prints)-1]
		return nil, err
	}
	return &p, nil
}

// UpdateEmbedding folds newEmbedding into the stored one via a
// seen-count-weighted running average (capped at 10 so the average
// never fully freezes), then renormalizes. Grounded on the teacher's
// Store.UpdateEmbedding.
func (s *Store) UpdateEmbedding(id string, newEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Prints {
		p := &s.data.Prints[i]
		if p.ID != id {
			continue
		}
		oldWeight := float32(p.SeenCount)
		if oldWeight > 10 {
			oldWeight = 10
		}
		total := oldWeight + 1
		for j := range p.Embedding {
			p.Embedding[j] = (p.Embedding[j]*oldWeight + newEmbedding[j]) / total
		}
		normalize(p.Embedding)
		p.SeenCount++
		p.LastSeenAt = time.Now()
		p.UpdatedAt = time.Now()
		return s.saveLocked()
	}
	return fmt.Errorf("voiceprint: not found: %s", id)
}

// Count returns the number of stored voiceprints.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Prints)
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 1e-10 {
		return
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}
