// File: internal/memory/memory.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory store is closed")

// Record holds the outcome statistics of one label under one fingerprint.
type Record struct {
	Success  int       `json:"success" yaml:"success"`
	Failure  int       `json:"failure" yaml:"failure"`
	LastUsed time.Time `json:"last_used" yaml:"last_used"`
}

// Total is the number of recorded outcomes.
func (r Record) Total() int { return r.Success + r.Failure }

// Score ranks a record: success rate as a percentage plus the raw success count. The
// denominator is floored at one so an empty record scores zero.
func (r Record) Score() float64 {
	denom := r.Total()
	if denom < 1 {
		denom = 1
	}
	return float64(r.Success)/float64(denom)*100 + float64(r.Success)
}

// Snapshot maps fingerprint to label to record.
type Snapshot map[string]map[string]Record

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for fp, labels := range s {
		inner := make(map[string]Record, len(labels))
		for label, rec := range labels {
			inner[label] = rec
		}
		out[fp] = inner
	}
	return out
}

// Key names the record a Save call changed. The zero Key means the whole snapshot.
type Key struct {
	Fingerprint string
	Label       string
}

// IsZero reports the whole-snapshot key.
func (k Key) IsZero() bool { return k.Fingerprint == "" && k.Label == "" }

// Backend persists snapshots. Implementations may write only the record named by key,
// or everything.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot, key Key) error
	Close() error
}

// Match is the best remembered choice among a set of candidate labels.
type Match struct {
	// Label is the candidate label that matched.
	Label string
	// Remembered is the label stored in memory.
	Remembered string
	Record     Record
	Score      float64
}

// Store is the in-process choice memory. One mutex serializes every record and persist,
// so a write is on disk before the next one starts.
type Store struct {
	mu      sync.RWMutex
	data    Snapshot
	backend Backend
	loaded  bool
	closed  bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a store over backend. Call Load before use.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		data:    Snapshot{},
		backend: backend,
		logger:  logger.Named("memory"),
		now:     time.Now,
	}
}

// Load reads persisted memory. It is a no-op after the first success; a missing store
// loads as empty.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.loaded {
		return nil
	}
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load choice memory: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	s.data = snap
	s.loaded = true
	s.logger.Info("Choice memory loaded", zap.Int("scenarios", len(snap)))
	return nil
}

// Record counts one outcome for label under fingerprint and persists it immediately.
// The in-memory counter is kept even when persisting fails.
func (s *Store) Record(ctx context.Context, fingerprint, label string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	labels, ok := s.data[fingerprint]
	if !ok {
		labels = make(map[string]Record)
		s.data[fingerprint] = labels
	}
	rec := labels[label]
	if success {
		rec.Success++
	} else {
		rec.Failure++
	}
	rec.LastUsed = s.now().UTC()
	labels[label] = rec

	if err := s.backend.Save(ctx, s.data, Key{Fingerprint: fingerprint, Label: label}); err != nil {
		return fmt.Errorf("failed to persist choice memory: %w", err)
	}
	s.logger.Debug("Choice outcome recorded",
		zap.String("fingerprint", fingerprint),
		zap.String("label", label),
		zap.Bool("success", success),
		zap.Int("successes", rec.Success),
		zap.Int("failures", rec.Failure))
	return nil
}

// BestMatch finds the highest scoring remembered label for fingerprint that matches one
// of the candidates. A match is a case-insensitive substring relation in either
// direction. Remembered labels are visited in sorted order and ties keep the first.
func (s *Store) BestMatch(fingerprint string, candidates []string) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := s.data[fingerprint]
	if len(labels) == 0 {
		return Match{}, false
	}

	remembered := make([]string, 0, len(labels))
	for label := range labels {
		remembered = append(remembered, label)
	}
	sort.Strings(remembered)

	var best Match
	bestScore := -1.0
	for _, rl := range remembered {
		rec := labels[rl]
		lowerRL := strings.ToLower(rl)
		if lowerRL == "" || rec.Total() == 0 {
			continue
		}
		for _, cand := range candidates {
			lowerCand := strings.ToLower(cand)
			if lowerCand == "" {
				continue
			}
			if !strings.Contains(lowerCand, lowerRL) && !strings.Contains(lowerRL, lowerCand) {
				continue
			}
			if score := rec.Score(); score > bestScore {
				bestScore = score
				best = Match{Label: cand, Remembered: rl, Record: rec, Score: score}
			}
			break
		}
	}
	return best, bestScore >= 0
}

// Snapshot returns a deep copy of the current memory.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Len returns the number of remembered scenarios.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Flush persists the whole snapshot.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.backend.Save(ctx, s.data, Key{}); err != nil {
		return fmt.Errorf("failed to flush choice memory: %w", err)
	}
	return nil
}

// Close releases the backend. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
