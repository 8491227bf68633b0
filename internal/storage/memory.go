package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

const memoryRunLimit = 500

type memoryStore struct {
	mu     sync.Mutex
	prefs  map[string]string
	runs   []RunRecord
	closed bool
}

// NewMemory returns a process-local store. It keeps the most recent runs only.
func NewMemory() Store {
	return &memoryStore{prefs: map[string]string{}}
}

func (s *memoryStore) GetPref(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.prefs[key]
	return v, ok, nil
}

func (s *memoryStore) PutPref(ctx context.Context, key, value string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.prefs[key] = value
	return nil
}

func (s *memoryStore) DeletePref(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.prefs, key)
	return nil
}

func (s *memoryStore) PrefKeys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return keysWithPrefix(s.prefs, prefix), nil
}

func (s *memoryStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.runs = append(s.runs, r)
	if len(s.runs) > memoryRunLimit {
		s.runs = s.runs[len(s.runs)-memoryRunLimit:]
	}
	return nil
}

func (s *memoryStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return tail(s.runs, limit), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func keysWithPrefix(m map[string]string, prefix string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func tail(runs []RunRecord, limit int) []RunRecord {
	if limit <= 0 || limit > len(runs) {
		limit = len(runs)
	}
	return append([]RunRecord(nil), runs[len(runs)-limit:]...)
}
