// Package graph implements the in-memory module graph: Module lifecycle
// (hydrate/parse/resolve), the Graph container (resolve/lock/flush), and
// the Builder that drives the fetch/visit wavefront to closure.
package graph

import (
	"github.com/hostedat/vgraph/internal/specifier"
)

// Dependency records, for one raw import string found in a module, the
// resolved code specifier and/or the resolved type-only specifier (the
// latter set either via an explicit @deno-types pragma or via import
// type / export type syntax).
type Dependency struct {
	MaybeCode *specifier.Specifier
	MaybeType *specifier.Specifier
}

// EmitType distinguishes independently cached transpile outputs, e.g. a
// plain "cli" emit versus a "check" emit; the Emitter applies the same
// options and eligibility rules to every emit type.
type EmitType int

const (
	EmitCLI EmitType = iota
	EmitCheck
)

func (e EmitType) String() string {
	switch e {
	case EmitCLI:
		return "cli"
	case EmitCheck:
		return "check"
	default:
		return "unknown"
	}
}

// Emit is a cached transpile artifact for one (Module, EmitType) pair.
type Emit struct {
	Code string
	Map  *string
}

// CachedModule is what a SpecifierHandler hands back from Fetch: the raw
// ingredients to hydrate a Module, plus any information the handler
// already knows about it from a previous run (dependencies, types,
// emits) so re-fetched modules need not be re-parsed from scratch.
type CachedModule struct {
	Specifier specifier.Specifier
	MediaType specifier.MediaType
	Source    string
	Charset   string

	MaybeDependencies map[string]Dependency
	MaybeTypes        *specifier.Specifier
	Emits             map[EmitType]Emit
}

// SpecifierHandler is the single external collaborator the Builder and
// Emitter depend on for all I/O: fetching source, and persisting
// dependency/type/emit information back out.
//
// Defined here, next to Builder, its only consumer inside this package --
// internal/handler provides concrete implementations (in-memory, SQLite,
// HTTP+file) against this interface.
type SpecifierHandler interface {
	Fetch(spec specifier.Specifier) (CachedModule, error)
	SetDeps(spec specifier.Specifier, deps map[string]Dependency) error
	SetTypes(spec specifier.Specifier, types specifier.Specifier) error
	SetCache(spec specifier.Specifier, emitType EmitType, emit Emit) error
	SetBuildInfo(spec specifier.Specifier, emitType EmitType, buildInfo string) error
}
