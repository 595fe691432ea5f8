// Package handler provides SpecifierHandler implementations: an in-memory
// fixture-backed double for tests, and the production handlers the
// Builder/Emitter are wired against (file+HTTP fetch, SQLite-backed
// persistent cache).
package handler

import (
	"fmt"
	"sync"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

// Fixture is one seeded module in a MemoryHandler.
type Fixture struct {
	Specifier specifier.Specifier
	MediaType specifier.MediaType
	Source    string
	Charset   string
}

// MemoryHandler is a fixture-backed SpecifierHandler test double: it
// records every call so tests can assert call counts and arguments.
type MemoryHandler struct {
	mu        sync.Mutex
	fixtures  map[specifier.Specifier]Fixture
	deps      map[specifier.Specifier]map[string]graph.Dependency
	types     map[specifier.Specifier]specifier.Specifier
	emits     map[specifier.Specifier]map[graph.EmitType]graph.Emit
	buildInfo map[specifier.Specifier]map[graph.EmitType]string

	FetchCalls []specifier.Specifier
	DepsCalls  []specifier.Specifier
	TypesCalls []specifier.Specifier
	CacheCalls []specifier.Specifier
}

// NewMemoryHandler returns a MemoryHandler seeded with fixtures.
func NewMemoryHandler(fixtures ...Fixture) *MemoryHandler {
	h := &MemoryHandler{
		fixtures:  map[specifier.Specifier]Fixture{},
		deps:      map[specifier.Specifier]map[string]graph.Dependency{},
		types:     map[specifier.Specifier]specifier.Specifier{},
		emits:     map[specifier.Specifier]map[graph.EmitType]graph.Emit{},
		buildInfo: map[specifier.Specifier]map[graph.EmitType]string{},
	}
	for _, f := range fixtures {
		h.fixtures[f.Specifier] = f
	}
	return h
}

func (h *MemoryHandler) Fetch(spec specifier.Specifier) (graph.CachedModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.FetchCalls = append(h.FetchCalls, spec)

	f, ok := h.fixtures[spec]
	if !ok {
		return graph.CachedModule{}, fmt.Errorf("no fixture for %s", spec)
	}
	cached := graph.CachedModule{
		Specifier: f.Specifier,
		MediaType: f.MediaType,
		Source:    f.Source,
		Charset:   f.Charset,
	}
	if deps, ok := h.deps[spec]; ok {
		cached.MaybeDependencies = deps
	}
	if t, ok := h.types[spec]; ok {
		cached.MaybeTypes = &t
	}
	if emits, ok := h.emits[spec]; ok {
		cached.Emits = emits
	}
	return cached, nil
}

func (h *MemoryHandler) SetDeps(spec specifier.Specifier, deps map[string]graph.Dependency) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.DepsCalls = append(h.DepsCalls, spec)
	h.deps[spec] = deps
	return nil
}

func (h *MemoryHandler) SetTypes(spec specifier.Specifier, types specifier.Specifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.TypesCalls = append(h.TypesCalls, spec)
	h.types[spec] = types
	return nil
}

func (h *MemoryHandler) SetCache(spec specifier.Specifier, emitType graph.EmitType, emit graph.Emit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CacheCalls = append(h.CacheCalls, spec)
	if h.emits[spec] == nil {
		h.emits[spec] = map[graph.EmitType]graph.Emit{}
	}
	h.emits[spec][emitType] = emit
	return nil
}

func (h *MemoryHandler) SetBuildInfo(spec specifier.Specifier, emitType graph.EmitType, buildInfo string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buildInfo[spec] == nil {
		h.buildInfo[spec] = map[graph.EmitType]string{}
	}
	h.buildInfo[spec][emitType] = buildInfo
	return nil
}
