//go:build v8

// Package v8engine implements core.GraphEngine on top of V8
// (github.com/tommie/v8go): it builds a module graph, transpiles it, has
// the Loader assemble it into one require()-linked script, then
// evaluates that script in a pool of pre-warmed isolates.
package v8engine

import (
	"fmt"
	"sync"

	"github.com/hostedat/vgraph/internal/core"
	"github.com/hostedat/vgraph/internal/emitter"
	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/importmap"
	"github.com/hostedat/vgraph/internal/loader"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

// Engine implements core.GraphEngine, pooling a separate set of V8
// isolates per root specifier (each root's bundle is its own program).
type Engine struct {
	cfg       core.EngineConfig
	handler   graph.SpecifierHandler
	parser    parser.Parser
	emitter   *emitter.Emitter
	importMap *importmap.ImportMap

	mu    sync.Mutex
	pools map[specifier.Specifier]*v8Pool
}

// NewEngine constructs an Engine against a SpecifierHandler (typically
// internal/handler.SQLiteHandler wrapping internal/handler.FetchHandler).
func NewEngine(cfg core.EngineConfig, handler graph.SpecifierHandler) *Engine {
	p := parser.NewEsbuildParser()
	return &Engine{
		cfg:     cfg,
		handler: handler,
		parser:  p,
		emitter: emitter.New(p, handler),
		pools:   map[specifier.Specifier]*v8Pool{},
	}
}

var _ core.GraphEngine = (*Engine)(nil)

// EnsureCompiled builds root's module graph and transpiles it, priming
// the handler's cache, without evaluating anything.
func (e *Engine) EnsureCompiled(rootRaw string) error {
	_, err := e.build(rootRaw)
	return err
}

func (e *Engine) build(rootRaw string) (*graph.Graph, error) {
	root, err := specifier.Parse(rootRaw)
	if err != nil {
		return nil, fmt.Errorf("v8engine: %w", err)
	}

	b := graph.NewBuilder(e.handler, e.parser, e.importMap)
	if err := b.Insert(root); err != nil {
		return nil, fmt.Errorf("v8engine: building graph for %s: %w", root, err)
	}
	g, err := b.GetGraph(nil)
	if err != nil {
		return nil, err
	}
	if _, _, err := e.emitter.Transpile(g, graph.EmitCLI, nil); err != nil {
		return nil, fmt.Errorf("v8engine: transpiling %s: %w", root, err)
	}
	return g, nil
}

// Evaluate takes a pooled isolate, in which root's bundle was built and
// run once when the isolate was created, and returns that run's result
// together with the console lines not yet drained from the isolate.
func (e *Engine) Evaluate(rootRaw string) (*core.EvalResult, error) {
	root, err := specifier.Parse(rootRaw)
	if err != nil {
		return nil, fmt.Errorf("v8engine: %w", err)
	}

	pool, err := e.poolFor(root)
	if err != nil {
		return nil, err
	}

	w, err := pool.get()
	if err != nil {
		return nil, err
	}
	defer pool.put(w)

	return &core.EvalResult{
		Output:       w.result,
		ConsoleLines: w.console.drain(),
	}, nil
}

func (e *Engine) poolFor(root specifier.Specifier) (*v8Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pools[root]; ok {
		return p, nil
	}

	g, err := e.build(string(root))
	if err != nil {
		return nil, err
	}
	bundled, err := loader.New(g, loader.Config{
		Node:     loader.DefaultNodeResolver(),
		EmitType: graph.EmitCLI,
	}).Assemble(root, "globalThis.__vgraph_module__")
	if err != nil {
		return nil, fmt.Errorf("v8engine: %w", err)
	}

	size := e.cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	pool, err := newV8Pool(size, bundled, e.cfg.MemoryLimitMB)
	if err != nil {
		return nil, fmt.Errorf("v8engine: creating pool for %s: %w", root, err)
	}
	e.pools[root] = pool
	return pool, nil
}

// InvalidateCache discards root's pool so the next Evaluate rebuilds it
// from source.
func (e *Engine) InvalidateCache(rootRaw string) {
	root, err := specifier.Parse(rootRaw)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pools[root]; ok {
		p.dispose()
		delete(e.pools, root)
	}
}

// Shutdown disposes every pooled isolate.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for root, p := range e.pools {
		p.dispose()
		delete(e.pools, root)
	}
}
