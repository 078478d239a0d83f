package middleware

import (
	"context"
	"fmt"

	"github.com/jward/agentmap/internal/cache"
	"github.com/jward/agentmap/internal/model"
)

// Backend stores analyses keyed on path and content hash. *store.Store
// satisfies it.
type Backend interface {
	GetAnalysis(path, hash string) (*model.CodeAnalysis, bool, error)
	PutAnalysis(a *model.CodeAnalysis) error
}

// Cache serves analyses for unchanged content from a Backend. Hits skip
// parsing and analysis entirely.
type Cache struct {
	Base
	backend Backend
}

// NewCache creates a caching middleware over backend.
func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend}
}

func (m *Cache) Name() string { return "cache" }

func (m *Cache) BeforeParse(_ context.Context, c *Context) error {
	if c.Hash == "" {
		return nil
	}
	a, ok, err := m.backend.GetAnalysis(c.Path, c.Hash)
	if err != nil {
		return fmt.Errorf("cache lookup: %w", err)
	}
	if ok {
		c.UseCached(a)
	}
	return nil
}

func (m *Cache) AfterAnalyze(_ context.Context, c *Context, a *model.CodeAnalysis) error {
	if c.Cached() != nil || a.Metadata.ContentHash == "" {
		return nil
	}
	if err := m.backend.PutAnalysis(a); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

type cacheKey struct {
	path string
	hash string
}

// MemoryBackend is a bounded in-process Backend. Stored and returned
// analyses are copies, so later resolution never mutates cached entries.
type MemoryBackend struct {
	lru *cache.LRU[cacheKey, *model.CodeAnalysis]
}

// NewMemoryBackend holds at most capacity analyses.
func NewMemoryBackend(capacity int) *MemoryBackend {
	return &MemoryBackend{lru: cache.New[cacheKey, *model.CodeAnalysis](capacity)}
}

func (b *MemoryBackend) GetAnalysis(path, hash string) (*model.CodeAnalysis, bool, error) {
	a, ok := b.lru.Get(cacheKey{path, hash})
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (b *MemoryBackend) PutAnalysis(a *model.CodeAnalysis) error {
	b.lru.Put(cacheKey{a.Path, a.Metadata.ContentHash}, a.Clone())
	return nil
}

// Stats reports hit, miss and eviction counts.
func (b *MemoryBackend) Stats() cache.Stats { return b.lru.Stats() }
