package graph

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/importmap"
	"github.com/hostedat/vgraph/internal/lockfile"
	"github.com/hostedat/vgraph/internal/parser"
	"github.com/hostedat/vgraph/internal/specifier"
)

// Builder drives the fetch/visit wavefront to closure for one or more
// root specifiers, deduplicating fetches and accumulating the result
// into a Graph.
type Builder struct {
	graph     *Graph
	handler   SpecifierHandler
	parser    parser.Parser
	importMap *importmap.ImportMap
	fetched   map[specifier.Specifier]bool
}

// NewBuilder constructs a Builder over a fresh, empty Graph. importMap
// may be nil.
func NewBuilder(handler SpecifierHandler, p parser.Parser, importMap *importmap.ImportMap) *Builder {
	return &Builder{
		graph:     newGraph(),
		handler:   handler,
		parser:    p,
		importMap: importMap,
		fetched:   map[specifier.Specifier]bool{},
	}
}

// Insert fetches root and every transitive dependency concurrently,
// visiting each as its fetch completes, until the wavefront drains --
// then, and only then, appends root to the graph's roots: roots are
// recorded after traversal closes, not before, so a root that turns out
// to be unreachable-from-itself never gets silently dropped mid-traversal.
func (b *Builder) Insert(root specifier.Specifier) error {
	type fetchResult struct {
		spec   specifier.Specifier
		cached CachedModule
		err    error
	}

	results := make(chan fetchResult)
	pending := 0

	doFetch := func(spec specifier.Specifier) {
		if b.fetched[spec] {
			return
		}
		b.fetched[spec] = true
		pending++
		go func() {
			cached, err := b.handler.Fetch(spec)
			results <- fetchResult{spec: spec, cached: cached, err: err}
		}()
	}

	doFetch(root)

	var firstErr error
	for pending > 0 {
		res := <-results
		pending--

		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetching %s: %w", res.spec, res.err)
			}
			continue
		}

		deps, err := b.visit(res.spec, res.cached)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, d := range deps {
			doFetch(d)
		}
	}

	if firstErr != nil {
		return firstErr
	}

	if !b.graph.IsRoot(root) {
		b.graph.Roots = append(b.graph.Roots, root)
	}
	return nil
}

// visit hydrates and (if needed) parses one fetched module, records it in
// the graph, reports its own dependency/type specifiers back to the
// handler -- but only when no import map is bound, since a bound import
// map can remap a bare specifier differently than whatever produced the
// cached dependency table -- and returns every specifier it depends on
// so the caller can keep fetching.
func (b *Builder) visit(spec specifier.Specifier, cached CachedModule) ([]specifier.Specifier, error) {
	mod := NewModule(spec, b.importMap)
	mod.Hydrate(cached)

	if !mod.IsParsed {
		if err := mod.Parse(b.parser); err != nil {
			return nil, err
		}
	}

	if b.importMap == nil {
		if err := b.handler.SetDeps(spec, mod.Dependencies); err != nil {
			return nil, fmt.Errorf("recording dependencies for %s: %w", spec, err)
		}
		if mod.MaybeTypes != nil {
			if err := b.handler.SetTypes(spec, *mod.MaybeTypes); err != nil {
				return nil, fmt.Errorf("recording types for %s: %w", spec, err)
			}
		}
	}

	b.graph.Modules[spec] = mod

	var deps []specifier.Specifier
	for _, dep := range mod.Dependencies {
		if dep.MaybeCode != nil {
			deps = append(deps, *dep.MaybeCode)
		}
		if dep.MaybeType != nil {
			deps = append(deps, *dep.MaybeType)
		}
	}
	if mod.MaybeTypes != nil {
		deps = append(deps, *mod.MaybeTypes)
	}
	return deps, nil
}

// GetGraph finalizes the built graph, checking every module's source
// against lf (nil skips locking), and returns it.
func (b *Builder) GetGraph(lf *lockfile.Lockfile) (*Graph, error) {
	if err := b.graph.Lock(lf); err != nil {
		return nil, err
	}
	return b.graph, nil
}
