package loader

import (
	"hash/fnv"
	"sync"

	"github.com/hostedat/vgraph/internal/specifier"
)

// CodeCacheKind distinguishes the kind of compiled artifact a cache entry
// holds -- mirrors the host's EsModule/Script split, though this loader
// only ever produces the former.
type CodeCacheKind int

const (
	CodeCacheEsModule CodeCacheKind = iota
	CodeCacheScript
)

// codeCacheKey identifies one cached compiled-code blob: the specifier, the
// kind of code it was compiled as, and a hash of the exact source it was
// compiled from, so a source edit invalidates the entry instead of
// serving stale bytes under a hash collision with the old content.
type codeCacheKey struct {
	Specifier specifier.Specifier
	Kind      CodeCacheKind
	Hash      uint64
}

// hashSource computes a fast, non-cryptographic hash of source for
// CodeCache keying. fnv-1a is the standard library's closest fit: the
// cache only needs to detect that source changed, not to resist
// adversarial collisions.
func hashSource(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// CodeCache is the standalone loader's persistent-compile-cache
// collaborator: get_sync/set_sync/code_cache_ready from the host's loader
// hooks, reduced to the subset this module graph builder exercises.
type CodeCache interface {
	GetSync(spec specifier.Specifier, kind CodeCacheKind, source string) ([]byte, bool)
	SetSync(spec specifier.Specifier, kind CodeCacheKind, source string, data []byte)
}

// MemoryCodeCache is an in-process CodeCache -- the standalone loader has
// no on-disk v8 code cache to persist to, so compiled artifacts do not
// outlive the process that produced them.
type MemoryCodeCache struct {
	mu      sync.Mutex
	entries map[codeCacheKey][]byte
}

func NewMemoryCodeCache() *MemoryCodeCache {
	return &MemoryCodeCache{entries: map[codeCacheKey][]byte{}}
}

func (c *MemoryCodeCache) GetSync(spec specifier.Specifier, kind CodeCacheKind, source string) ([]byte, bool) {
	key := codeCacheKey{Specifier: spec, Kind: kind, Hash: hashSource(source)}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *MemoryCodeCache) SetSync(spec specifier.Specifier, kind CodeCacheKind, source string, data []byte) {
	key := codeCacheKey{Specifier: spec, Kind: kind, Hash: hashSource(source)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), data...)
}
