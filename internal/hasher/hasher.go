// Package hasher fingerprints file content and remembers the last
// fingerprint seen per path so scans can skip unchanged files.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
)

// Size is the length in hex characters of every hash.
const Size = 16

// Hash returns the first 16 hex characters of SHA-256(content).
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:Size]
}

// Manifest is a persisted path -> hash mapping.
type Manifest map[string]string

// Paths returns the manifest's paths in sorted order.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Hasher caches the hash last recorded for each path. Lookups take the read
// lock; updates take the write lock.
type Hasher struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// New returns an empty hasher.
func New() *Hasher {
	return &Hasher{hashes: make(map[string]string)}
}

// HasChanged reports whether path is unknown or its recorded hash differs
// from the hash of content.
func (h *Hasher) HasChanged(path string, content []byte) bool {
	sum := Hash(content)
	h.mu.RLock()
	prev, ok := h.hashes[path]
	h.mu.RUnlock()
	return !ok || prev != sum
}

// Cached returns the recorded hash for path.
func (h *Hasher) Cached(path string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sum, ok := h.hashes[path]
	return sum, ok
}

// HashFile records the hash of content for path and returns it.
func (h *Hasher) HashFile(path string, content []byte) string {
	sum := Hash(content)
	h.Record(path, sum)
	return sum
}

// Record stores a precomputed hash for path.
func (h *Hasher) Record(path, sum string) {
	h.mu.Lock()
	h.hashes[path] = sum
	h.mu.Unlock()
}

// Forget drops path from the cache.
func (h *Hasher) Forget(path string) {
	h.mu.Lock()
	delete(h.hashes, path)
	h.mu.Unlock()
}

// Len returns the number of recorded paths.
func (h *Hasher) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hashes)
}

// Export returns a copy of the recorded hashes.
func (h *Hasher) Export() Manifest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := make(Manifest, len(h.hashes))
	for p, s := range h.hashes {
		m[p] = s
	}
	return m
}

// Import merges m into the cache, replacing entries for the same paths.
// Hashes of the wrong length are ignored.
func (h *Hasher) Import(m Manifest) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for p, s := range m {
		if len(s) != Size {
			continue
		}
		h.hashes[p] = s
		n++
	}
	return n
}

// Clear empties the cache.
func (h *Hasher) Clear() {
	h.mu.Lock()
	h.hashes = make(map[string]string)
	h.mu.Unlock()
}
