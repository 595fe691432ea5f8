// Package vgraph builds and evaluates JavaScript/TypeScript module graphs:
// it resolves a root specifier's import graph, transpiles and bundles it,
// and runs the result in a pooled JS engine (QuickJS by default, V8 with
// -tags v8).
package vgraph

import (
	"github.com/hostedat/vgraph/internal/core"
	"github.com/hostedat/vgraph/internal/graph"
)

// EngineConfig configures a Builder's engine backend.
type EngineConfig = core.EngineConfig

// EvalResult is the outcome of evaluating a root's bundle.
type EvalResult = core.EvalResult

// Builder wraps a backend JS engine (QuickJS by default, V8 with -tags v8)
// bound to a SpecifierHandler that fetches and caches module sources.
type Builder struct {
	backend core.GraphEngine
}

// NewBuilder creates a Builder with the given config and SpecifierHandler.
func NewBuilder(cfg EngineConfig, handler graph.SpecifierHandler) *Builder {
	return &Builder{backend: newBackend(cfg, handler)}
}

// EnsureCompiled builds and transpiles root's module graph without
// evaluating it, priming the handler's cache.
func (b *Builder) EnsureCompiled(root string) error {
	return b.backend.EnsureCompiled(root)
}

// Evaluate returns root's result and console output from a pooled
// runtime; the graph is built, bundled and run once per runtime when
// that runtime is created.
func (b *Builder) Evaluate(root string) (*EvalResult, error) {
	return b.backend.Evaluate(root)
}

// InvalidateCache discards root's cached graph and pool so the next
// Evaluate or EnsureCompiled rebuilds it from source.
func (b *Builder) InvalidateCache(root string) {
	b.backend.InvalidateCache(root)
}

// Shutdown disposes of all pools and engine instances.
func (b *Builder) Shutdown() {
	b.backend.Shutdown()
}
