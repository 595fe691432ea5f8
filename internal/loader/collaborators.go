package loader

import (
	"fmt"

	"github.com/hostedat/vgraph/internal/specifier"
)

// ResolutionKind distinguishes whether an import was reached via static or
// dynamic ESM syntax versus a CommonJS require() call. Resolve threads
// this through to the node resolver collaborator, which applies a
// different algorithm (ESM resolution vs. CJS module resolution)
// depending on it.
type ResolutionKind int

const (
	ResolutionImport ResolutionKind = iota
	ResolutionRequire
)

func (k ResolutionKind) String() string {
	if k == ResolutionRequire {
		return "require"
	}
	return "import"
}

// WorkspaceResolutionKind classifies what a WorkspaceResolver found for a
// raw specifier.
type WorkspaceResolutionKind int

const (
	WorkspaceJsrPackage WorkspaceResolutionKind = iota
	WorkspaceNpmPackage
	WorkspacePackageJSON
	WorkspaceNormal
)

// PackageJSONDepKind classifies a package.json-declared dependency a
// WorkspaceResolver resolved raw against.
type PackageJSONDepKind int

const (
	PackageJSONDepFile PackageJSONDepKind = iota
	PackageJSONDepReq
	PackageJSONDepWorkspace
)

// WorkspaceResolution is what a WorkspaceResolver returns for a raw
// specifier: exactly one of the four shapes the standalone loader's
// resolve decision tree branches on.
type WorkspaceResolution struct {
	Kind WorkspaceResolutionKind

	// WorkspaceJsrPackage: the jsr specifier to use directly.
	Specifier specifier.Specifier

	// WorkspaceNpmPackage, and the Workspace-kind PackageJSON branch: the
	// on-disk package directory to hand the node resolver, plus whatever
	// subpath (if any) followed the bare specifier.
	PackageDir string
	Subpath    string

	// WorkspacePackageJSON.
	DepKind PackageJSONDepKind
	Req     string // npm request string, populated for PackageJSONDepReq

	// WorkspaceNormal: a plain resolved URL, possibly an "npm:" specifier
	// or a "jsr:" one that still needs one more hop.
	Resolved specifier.Specifier
}

// WorkspaceResolver is the opaque collaborator consulted for every bare
// specifier not already inside an npm package: it knows about the
// workspace's member folders and package.json dependencies the way a real
// package manager would, something this module graph builder does not
// reimplement.
type WorkspaceResolver interface {
	Resolve(raw string, referrer specifier.Specifier) (*WorkspaceResolution, error)
}

// NodeResolver implements Node's CommonJS/ESM module resolution algorithm
// (node_modules walk, package.json "exports", extension probing) --
// out of scope for this module graph builder to reimplement, so it is
// consumed as an interface.
type NodeResolver interface {
	ResolveRequire(raw string, referrerDir string, mode ResolutionKind) (specifier.Specifier, error)
	IsInNpmPackage(spec specifier.Specifier) bool
	IsCJS(spec specifier.Specifier) bool
}

// NpmReqResolver resolves an "npm:pkg@range" request plus an optional
// subpath to the concrete specifier a package manager would have placed
// it at.
type NpmReqResolver interface {
	ResolveReq(req string, subpath string) (specifier.Specifier, error)
}

// NpmModuleLoader asynchronously loads the contents of a module living
// inside an already-resolved npm package, reporting whether it is JSON
// rather than JavaScript.
type NpmModuleLoader interface {
	Load(spec specifier.Specifier) (code string, isJSON bool, err error)
}

// NpmRegistryPermissionChecker gates reads into npm-registry-sourced
// packages the way a sandboxed runtime's permission system would.
type NpmRegistryPermissionChecker interface {
	EnsureReadPermission(path string) (string, error)
}

// CJSTracker reports whether a module ought to be treated as CommonJS
// rather than ESM.
type CJSTracker interface {
	IsMaybeCJS(spec specifier.Specifier, mediaType specifier.MediaType) bool
}

// CJSTranslator rewrites CommonJS source into an ESM-compatible module
// body at load time.
type CJSTranslator interface {
	Translate(spec specifier.Specifier, source string) (string, error)
}

// nullWorkspaceResolver falls back to plain URL resolution against the
// referrer -- the behavior of a standalone binary with no workspace or
// package.json to consult.
type nullWorkspaceResolver struct{}

func (nullWorkspaceResolver) Resolve(raw string, referrer specifier.Specifier) (*WorkspaceResolution, error) {
	resolved, err := specifier.ResolveImport(raw, referrer)
	if err != nil {
		return nil, err
	}
	return &WorkspaceResolution{Kind: WorkspaceNormal, Resolved: resolved}, nil
}

type nullNodeResolver struct{}

func (nullNodeResolver) ResolveRequire(raw, referrerDir string, mode ResolutionKind) (specifier.Specifier, error) {
	return "", fmt.Errorf("loader: no node resolver configured for %q (referrer dir %s, mode %s)", raw, referrerDir, mode)
}
func (nullNodeResolver) IsInNpmPackage(specifier.Specifier) bool { return false }
func (nullNodeResolver) IsCJS(specifier.Specifier) bool          { return false }

type nullNpmReqResolver struct{}

func (nullNpmReqResolver) ResolveReq(req, subpath string) (specifier.Specifier, error) {
	return "", fmt.Errorf("loader: no npm request resolver configured for %q", req)
}

type nullNpmModuleLoader struct{}

func (nullNpmModuleLoader) Load(spec specifier.Specifier) (string, bool, error) {
	return "", false, fmt.Errorf("loader: no npm module loader configured for %s", spec)
}

type nullPermChecker struct{}

func (nullPermChecker) EnsureReadPermission(path string) (string, error) { return path, nil }

// nullCJSTracker only flags the media types that are unambiguously
// CommonJS by extension; everything else is treated as ESM.
type nullCJSTracker struct{}

func (nullCJSTracker) IsMaybeCJS(_ specifier.Specifier, mt specifier.MediaType) bool {
	return mt == specifier.Cjs || mt == specifier.Cts
}

type nullCJSTranslator struct{}

func (nullCJSTranslator) Translate(spec specifier.Specifier, _ string) (string, error) {
	return "", fmt.Errorf("loader: no CJS translator configured for %s", spec)
}
