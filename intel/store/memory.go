package store

import (
	"context"
	"sync"
)

// Memory is the in-process reference backend: a mutex-guarded map.
// Aliases hold only the target key, so alias lookups return the identical
// bundle object stored under the primary key.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*NicheIntelligence
	aliases map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*NicheIntelligence),
		aliases: make(map[string]string),
	}
}

func (m *Memory) resolve(key string) (*NicheIntelligence, bool) {
	if e, ok := m.entries[key]; ok {
		return e, true
	}
	if target, ok := m.aliases[key]; ok {
		e, ok := m.entries[target]
		return e, ok
	}
	return nil, false
}

func (m *Memory) Get(_ context.Context, key string) (*NicheIntelligence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.resolve(key)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Set(_ context.Context, key string, intel *NicheIntelligence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = intel
	return nil
}

func (m *Memory) SetAlias(_ context.Context, alias, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// First writer wins; a primary entry also blocks the alias slot.
	if _, ok := m.aliases[alias]; ok {
		return nil
	}
	if _, ok := m.entries[alias]; ok {
		return nil
	}
	m.aliases[alias] = target
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.resolve(key)
	return ok, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	s.NichesTracked = len(m.entries)
	for _, e := range m.entries {
		s.TotalAdsCollected += len(e.Ads)
		if s.OldestData.IsZero() || e.LastUpdated.Before(s.OldestData) {
			s.OldestData = e.LastUpdated
		}
		if e.LastUpdated.After(s.NewestData) {
			s.NewestData = e.LastUpdated
		}
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }
