package deployment

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests. Safe for
// concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string]map[int]*Version // graphID -> version -> Version
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[string]map[int]*Version)}
}

func (s *MemoryStore) CreateVersion(ctx context.Context, v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[v.GraphID] == nil {
		s.versions[v.GraphID] = make(map[int]*Version)
	}
	stored := v
	s.versions[v.GraphID][v.Version] = &stored
	return nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, graphID string, version int) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[graphID][version]
	if !ok {
		return Version{}, ErrNotFound
	}
	return *v, nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, graphID string, page, size int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]Version, 0, len(s.versions[graphID]))
	for _, v := range s.versions[graphID] {
		all = append(all, *v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version > all[j].Version })

	total := len(all)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return Page{Versions: all[start:end], Total: total}, nil
}

func (s *MemoryStore) ActiveVersion(ctx context.Context, graphID string) (Version, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[graphID] {
		if v.IsActive {
			return *v, true, nil
		}
	}
	return Version{}, false, nil
}

func (s *MemoryStore) MaxVersion(ctx context.Context, graphID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for version := range s.versions[graphID] {
		if version > max {
			max = version
		}
	}
	return max, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, graphID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.versions[graphID][version]
	if !ok {
		return ErrNotFound
	}
	for _, v := range s.versions[graphID] {
		v.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (s *MemoryStore) RenameVersion(ctx context.Context, graphID string, version int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[graphID][version]
	if !ok {
		return ErrNotFound
	}
	v.Name = name
	return nil
}

func (s *MemoryStore) DeleteVersion(ctx context.Context, graphID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[graphID][version]; !ok {
		return ErrNotFound
	}
	delete(s.versions[graphID], version)
	return nil
}
