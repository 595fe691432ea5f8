package graph

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/lockfile"
	"github.com/hostedat/vgraph/internal/specifier"
)

// Graph is the closed set of modules reachable from Roots, plus whatever
// per-EmitType build_info each root carries after a transpile pass
// after a transpile pass.
type Graph struct {
	Roots     []specifier.Specifier
	Modules   map[specifier.Specifier]*Module
	BuildInfo map[EmitType]map[specifier.Specifier]string
}

func newGraph() *Graph {
	return &Graph{
		Modules:   map[specifier.Specifier]*Module{},
		BuildInfo: map[EmitType]map[specifier.Specifier]string{},
	}
}

// Resolve follows the ModuleProvider contract used by a runtime's loader
// step: given a referrer module already in the graph and a raw import
// string it depends on, find the specifier to actually load. A module's
// maybe_type is preferred over maybe_code when present, and when the
// resolved module itself carries a types sidecar, resolution follows
// that ONE additional hop.
func (g *Graph) Resolve(referrer specifier.Specifier, raw string) (specifier.Specifier, error) {
	referrerModule, ok := g.Modules[referrer]
	if !ok {
		return "", errMissingSpecifier(referrer)
	}

	dep, ok := referrerModule.Dependencies[raw]
	if !ok {
		return "", errMissingDependency(referrer, specifier.Specifier(raw))
	}

	var resolved specifier.Specifier
	switch {
	case dep.MaybeType != nil:
		resolved = *dep.MaybeType
	case dep.MaybeCode != nil:
		resolved = *dep.MaybeCode
	default:
		return "", errMissingDependency(referrer, specifier.Specifier(raw))
	}

	if resolvedModule, ok := g.Modules[resolved]; ok && resolvedModule.MaybeTypes != nil {
		return *resolvedModule.MaybeTypes, nil
	}
	return resolved, nil
}

// Lock checks every module's source against lf, inserting a first-seen
// hash and failing closed on the first mismatch.
// A nil lockfile is a no-op.
func (g *Graph) Lock(lf *lockfile.Lockfile) error {
	if lf == nil {
		return nil
	}
	for spec, mod := range g.Modules {
		if !lf.CheckOrInsert(string(spec), mod.Source) {
			return errInvalidSource(spec, lf.Path())
		}
	}
	return nil
}

// Flush persists every dirty module's emit for emitType through handler,
// then records each root's build_info for that emit type if one exists.
// Only dirty modules are written.
func (g *Graph) Flush(handler SpecifierHandler, emitType EmitType) error {
	for spec, mod := range g.Modules {
		if !mod.IsDirty {
			continue
		}
		emit, ok := mod.Emits[emitType]
		if !ok {
			continue
		}
		if err := handler.SetCache(spec, emitType, emit); err != nil {
			return fmt.Errorf("flushing emit for %s: %w", spec, err)
		}
		mod.IsDirty = false
	}

	if infos, ok := g.BuildInfo[emitType]; ok {
		for _, root := range g.Roots {
			info, ok := infos[root]
			if !ok {
				continue
			}
			if err := handler.SetBuildInfo(root, emitType, info); err != nil {
				return fmt.Errorf("flushing build info for %s: %w", root, err)
			}
		}
	}
	return nil
}

// SetBuildInfo records build_info for a root module under emitType, to be
// persisted on the next Flush. build_info is scoped to roots only -- it
// is never set for a non-root module.
func (g *Graph) SetBuildInfo(root specifier.Specifier, emitType EmitType, info string) {
	if g.BuildInfo[emitType] == nil {
		g.BuildInfo[emitType] = map[specifier.Specifier]string{}
	}
	g.BuildInfo[emitType][root] = info
}

// IsRoot reports whether spec was one of the graph's entry points.
func (g *Graph) IsRoot(spec specifier.Specifier) bool {
	for _, r := range g.Roots {
		if r == spec {
			return true
		}
	}
	return false
}
