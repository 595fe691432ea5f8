// Package loader implements the standalone binary's module resolve/load
// contract: a Resolve/Load callback pair consulted per module instead of
// a whole-graph bundler, backed by the in-memory Graph plus a handful of
// pluggable collaborators (workspace resolution, Node's CJS/ESM
// algorithm, npm package loading, a compiled-code cache) that a
// standalone binary with no workspace or npm registry leaves as no-ops.
//
// Assemble drives Resolve/Load over every module reachable from a root
// and stitches the results into one runnable script via a small
// CommonJS-style require() shim -- each module is transpiled to CJS
// individually (api.Transform, never api.Build) because raw ESM
// import/export syntax cannot execute once wrapped inside a function
// body; only the require() shim performs cross-module linking at
// runtime, the same way Node's own CJS loader does.
package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

// RequestedModuleType mirrors the host's requested_module_type hint,
// letting a caller say "I expect JSON here" ahead of Load inspecting the
// specifier itself.
type RequestedModuleType int

const (
	RequestedAuto RequestedModuleType = iota
	RequestedJSON
)

// ModuleKind is what Load determined the loaded source actually is.
type ModuleKind int

const (
	KindEsm ModuleKind = iota
	KindCjs
	KindJson
)

// ModuleSource is what Load resolves to: the source text plus whatever
// compiled-code cache hit was available for it.
type ModuleSource struct {
	Specifier  specifier.Specifier
	MediaType  specifier.MediaType
	Kind       ModuleKind
	Code       string
	CachedData []byte // non-nil when CodeCache.GetSync hit
}

// Config wires the collaborators a real workspace/npm-aware host would
// supply. Every field defaults to a null implementation representing a
// standalone binary with no workspace, npm registry, or persistent cache
// to consult.
type Config struct {
	Workspace  WorkspaceResolver
	Node       NodeResolver
	NpmReq     NpmReqResolver
	NpmModules NpmModuleLoader
	NpmPerm    NpmRegistryPermissionChecker
	CJSTracker CJSTracker
	CJSTrans   CJSTranslator
	Cache      CodeCache
	EmitType   graph.EmitType
}

func (c Config) withDefaults() Config {
	if c.Workspace == nil {
		c.Workspace = nullWorkspaceResolver{}
	}
	if c.Node == nil {
		c.Node = nullNodeResolver{}
	}
	if c.NpmReq == nil {
		c.NpmReq = nullNpmReqResolver{}
	}
	if c.NpmModules == nil {
		c.NpmModules = nullNpmModuleLoader{}
	}
	if c.NpmPerm == nil {
		c.NpmPerm = nullPermChecker{}
	}
	if c.CJSTracker == nil {
		c.CJSTracker = nullCJSTracker{}
	}
	if c.CJSTrans == nil {
		c.CJSTrans = nullCJSTranslator{}
	}
	if c.Cache == nil {
		c.Cache = NewMemoryCodeCache()
	}
	return c
}

// Loader is the standalone binary's resolve/load surface over an
// already-built Graph.
type Loader struct {
	graph *graph.Graph
	cfg   Config
}

// New constructs a Loader over g, filling in any unset collaborator with
// its null default.
func New(g *graph.Graph, cfg Config) *Loader {
	return &Loader{graph: g, cfg: cfg.withDefaults()}
}

// Resolve implements the decision tree a standalone host's resolve()
// hook walks for every import: full delegation to the node resolver once
// inside an npm package, otherwise a workspace lookup that may still
// bottom out in the node resolver, an npm request, or an embedded
// lookup, with one last npm-request fallback for an unmapped bare
// specifier reached from a plain file referrer.
func (l *Loader) Resolve(raw string, referrer specifier.Specifier, kind ResolutionKind) (specifier.Specifier, error) {
	if l.cfg.Node.IsInNpmPackage(referrer) {
		return l.cfg.Node.ResolveRequire(raw, referrerDir(referrer), kind)
	}

	res, err := l.cfg.Workspace.Resolve(raw, referrer)
	if err != nil {
		return "", fmt.Errorf("loader: resolving %q from %s: %w", raw, referrer, err)
	}

	switch res.Kind {
	case WorkspaceJsrPackage:
		return res.Specifier, nil

	case WorkspaceNpmPackage:
		return l.cfg.Node.ResolveRequire(res.Subpath, res.PackageDir, kind)

	case WorkspacePackageJSON:
		switch res.DepKind {
		case PackageJSONDepFile:
			return "", errUnsupportedPackageJSONFileSpecifier(specifier.Specifier(raw))
		case PackageJSONDepReq:
			return l.cfg.NpmReq.ResolveReq(res.Req, res.Subpath)
		default: // PackageJSONDepWorkspace
			return l.cfg.Node.ResolveRequire(res.Subpath, res.PackageDir, kind)
		}

	default: // WorkspaceNormal
		resolved := res.Resolved
		switch resolved.Scheme() {
		case "npm":
			req, subpath := splitNpmSpecifier(resolved)
			return l.cfg.NpmReq.ResolveReq(req, subpath)
		case "jsr":
			// One more hop: an embedded jsr package is just a normal
			// specifier once a workspace/registry has mapped it; absent
			// one, the jsr: specifier is returned as-is for the caller's
			// own jsr handling.
			return resolved, nil
		default:
			if _, ok := l.graph.Modules[resolved]; !ok && referrer.Scheme() == "file" && !strings.HasPrefix(raw, ".") && !strings.HasPrefix(raw, "/") {
				// An unmapped bare specifier reached from a file referrer
				// gets one last chance as an implicit npm request.
				if fallback, err := l.cfg.NpmReq.ResolveReq(raw, ""); err == nil {
					return fallback, nil
				}
			}
			return resolved, nil
		}
	}
}

// referrerDir returns the directory portion of a file-scheme referrer,
// the form the node resolver's node_modules walk starts from.
func referrerDir(referrer specifier.Specifier) string {
	p := referrer.Path()
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[:idx]
	}
	return p
}

// splitNpmSpecifier splits an "npm:pkg@range/sub/path" specifier into the
// bare request and the subpath following it.
func splitNpmSpecifier(spec specifier.Specifier) (req string, subpath string) {
	rest := strings.TrimPrefix(string(spec), "npm:")
	// A scoped package's leading "@scope/" segment must not be mistaken
	// for the request/subpath boundary.
	searchFrom := 0
	if strings.HasPrefix(rest, "@") {
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			searchFrom = idx + 1
		}
	}
	if idx := strings.IndexByte(rest[searchFrom:], '/'); idx >= 0 {
		cut := searchFrom + idx
		return rest[:cut], rest[cut+1:]
	}
	return rest, ""
}

// Load resolves a specifier's content: data: URLs decode synchronously,
// npm-package specifiers go through the npm module loader (permission
// checked first), everything else is looked up in the graph's embedded
// module table, with CJS translation applied when the CJS tracker says
// the module needs it. isDynamic is accepted for parity with the host
// callback signature but does not change behavior here -- dynamic and
// static imports are loaded identically once resolved.
func (l *Loader) Load(spec specifier.Specifier, maybeReferrer *specifier.Specifier, isDynamic bool, requestedType RequestedModuleType) (ModuleSource, error) {
	_ = isDynamic

	if spec.Scheme() == "data" {
		return l.loadDataURL(spec, requestedType)
	}

	if l.cfg.Node.IsInNpmPackage(spec) {
		return l.loadNpmModule(spec, requestedType)
	}

	mod, ok := l.graph.Modules[spec]
	if !ok {
		return ModuleSource{}, errModuleNotFound(spec)
	}

	source := mod.Source
	if emit, ok := mod.Emits[l.cfg.EmitType]; ok {
		source = emit.Code
	}

	kind := KindEsm
	if mod.MediaType == specifier.Json || requestedType == RequestedJSON {
		kind = KindJson
	} else if l.cfg.CJSTracker.IsMaybeCJS(spec, mod.MediaType) {
		translated, err := l.cfg.CJSTrans.Translate(spec, source)
		if err != nil {
			return ModuleSource{}, fmt.Errorf("loader: translating CJS module %s: %w", spec, err)
		}
		source = translated
		kind = KindCjs
	}

	cached, _ := l.cfg.Cache.GetSync(spec, CodeCacheEsModule, source)

	return ModuleSource{
		Specifier:  spec,
		MediaType:  mod.MediaType,
		Kind:       kind,
		Code:       source,
		CachedData: cached,
	}, nil
}

func (l *Loader) loadDataURL(spec specifier.Specifier, requestedType RequestedModuleType) (ModuleSource, error) {
	decoded, err := decodeDataURL(string(spec))
	if err != nil {
		return ModuleSource{}, err
	}
	kind := KindEsm
	if requestedType == RequestedJSON || mediaTypeFromMIME(decoded.MediaType) == specifier.Json {
		kind = KindJson
	}
	return ModuleSource{
		Specifier: spec,
		MediaType: mediaTypeFromMIME(decoded.MediaType),
		Kind:      kind,
		Code:      decoded.Body,
	}, nil
}

func (l *Loader) loadNpmModule(spec specifier.Specifier, requestedType RequestedModuleType) (ModuleSource, error) {
	path, err := l.cfg.NpmPerm.EnsureReadPermission(spec.Path())
	if err != nil {
		return ModuleSource{}, fmt.Errorf("loader: npm read permission for %s: %w", spec, err)
	}
	_ = path

	code, isJSON, err := l.cfg.NpmModules.Load(spec)
	if err != nil {
		return ModuleSource{}, err
	}
	kind := KindEsm
	if isJSON || requestedType == RequestedJSON {
		kind = KindJson
	} else if l.cfg.Node.IsCJS(spec) {
		translated, err := l.cfg.CJSTrans.Translate(spec, code)
		if err == nil {
			code = translated
			kind = KindCjs
		}
	}
	return ModuleSource{Specifier: spec, Kind: kind, Code: code}, nil
}

func mediaTypeFromMIME(mime string) specifier.MediaType {
	switch {
	case strings.Contains(mime, "json"):
		return specifier.Json
	case strings.Contains(mime, "jsx"):
		return specifier.JSX
	case strings.Contains(mime, "typescript"):
		return specifier.TypeScript
	default:
		return specifier.JavaScript
	}
}

// CodeCacheReady plumbs a just-compiled code-cache blob back into the
// configured CodeCache, mirroring the host's code_cache_ready hook.
func (l *Loader) CodeCacheReady(spec specifier.Specifier, source string, data []byte) {
	l.cfg.Cache.SetSync(spec, CodeCacheEsModule, source, data)
}

// GetSourceMap returns the emitted source map for spec under the
// configured EmitType, if one was produced.
func (l *Loader) GetSourceMap(spec specifier.Specifier) (string, bool) {
	mod, ok := l.graph.Modules[spec]
	if !ok {
		return "", false
	}
	emit, ok := mod.Emits[l.cfg.EmitType]
	if !ok || emit.Map == nil {
		return "", false
	}
	return *emit.Map, true
}

// GetSourceMappedSourceLine returns the (zero-indexed) source line of
// spec's original source, splitting strictly on "\n". An out-of-range
// line number produces a bounded warning string rather than an error --
// this only ever backs a stack-trace frame printout, where failing the
// whole trace over one bad line number would be worse than a placeholder.
func (l *Loader) GetSourceMappedSourceLine(spec specifier.Specifier, lineNumber int) string {
	mod, ok := l.graph.Modules[spec]
	if !ok {
		return fmt.Sprintf("<source unavailable: %s not loaded>", spec)
	}
	lines := strings.Split(mod.Source, "\n")
	if lineNumber < 0 || lineNumber >= len(lines) {
		return fmt.Sprintf("<line %d out of range for %s (%d lines)>", lineNumber, spec, len(lines))
	}
	return lines[lineNumber]
}

// Assemble walks every module reachable from root, loads each through
// Load (exercising the resolve/load contract above rather than handing
// the whole graph to a bundler), converts each to CommonJS individually,
// and wraps the results in a require() shim so one script can run the
// graph -- the narrowest mechanism that still produces a single
// executable artifact for the pooled-isolate engines to run.
func (l *Loader) Assemble(root specifier.Specifier, globalName string) (string, error) {
	if _, ok := l.graph.Modules[root]; !ok {
		return "", fmt.Errorf("loader: root %s not present in graph", root)
	}

	order, err := l.reachableFrom(root)
	if err != nil {
		return "", err
	}

	var modules strings.Builder
	for _, spec := range order {
		src, err := l.Load(spec, nil, false, RequestedAuto)
		if err != nil {
			return "", fmt.Errorf("loader: loading %s: %w", spec, err)
		}

		mod := l.graph.Modules[spec]
		table := l.requireTable(spec, mod)

		var body string
		switch src.Kind {
		case KindJson:
			body = fmt.Sprintf("module.exports = %s;", src.Code)
		default:
			cjs, err := toCommonJS(src.Code, mod.MediaType)
			if err != nil {
				return "", fmt.Errorf("loader: converting %s to CommonJS: %w", spec, err)
			}
			body = cjs
		}

		modules.WriteString(fmt.Sprintf("%s: function(module, exports, require) {\n", jsString(string(spec))))
		modules.WriteString(wrapWithRequireTable(table))
		modules.WriteString(body)
		modules.WriteString("\n},\n")
	}

	var out strings.Builder
	out.WriteString("(function() {\n")
	out.WriteString("var __vmodules__ = {\n")
	out.WriteString(modules.String())
	out.WriteString("};\n")
	out.WriteString("var __vcache__ = {};\n")
	out.WriteString("function __vrequire__(id) {\n")
	out.WriteString("  if (__vcache__[id]) { return __vcache__[id].exports; }\n")
	out.WriteString("  var mod = { exports: {} };\n")
	out.WriteString("  __vcache__[id] = mod;\n")
	out.WriteString("  __vmodules__[id](mod, mod.exports, __vrequire__);\n")
	out.WriteString("  return mod.exports;\n")
	out.WriteString("}\n")
	out.WriteString(fmt.Sprintf("return __vrequire__(%s);\n", jsString(string(root))))
	out.WriteString("})()")

	_ = globalName // not used: the IIFE's return value is the script's completion value, which the engines read back.
	return out.String(), nil
}

// reachableFrom walks the graph depth-first from root using Resolve for
// each dependency edge. It deliberately is not a topological sort: the
// require() shim's lazy, memoized semantics tolerate cycles exactly the
// way Node's own CJS loader does, so visit order need only be
// deterministic, not dependency-first.
func (l *Loader) reachableFrom(root specifier.Specifier) ([]specifier.Specifier, error) {
	visited := map[specifier.Specifier]bool{}
	var order []specifier.Specifier

	var visit func(spec specifier.Specifier) error
	visit = func(spec specifier.Specifier) error {
		if visited[spec] {
			return nil
		}
		visited[spec] = true
		order = append(order, spec)

		mod, ok := l.graph.Modules[spec]
		if !ok {
			return nil
		}

		raws := make([]string, 0, len(mod.Dependencies))
		for raw := range mod.Dependencies {
			raws = append(raws, raw)
		}
		sort.Strings(raws)

		for _, raw := range raws {
			resolved, err := l.graph.Resolve(spec, raw)
			if err != nil {
				continue
			}
			if err := visit(resolved); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// requireTable maps every raw import string a module used to the
// canonical specifier it resolved to, so the emitted require() shim can
// remap module-local require("./x") calls to the graph's absolute keys.
func (l *Loader) requireTable(spec specifier.Specifier, mod *graph.Module) map[string]specifier.Specifier {
	table := map[string]specifier.Specifier{}
	for raw := range mod.Dependencies {
		if resolved, err := l.graph.Resolve(spec, raw); err == nil {
			table[raw] = resolved
		}
	}
	return table
}

// wrapWithRequireTable emits a small per-module require() wrapper that
// remaps the module's original raw specifiers to their resolved
// absolute form before delegating to the shared __vrequire__.
func wrapWithRequireTable(table map[string]specifier.Specifier) string {
	if len(table) == 0 {
		return ""
	}
	raws := make([]string, 0, len(table))
	for raw := range table {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	var b strings.Builder
	b.WriteString("var __vraw__ = require;\n")
	b.WriteString("require = function(spec) {\n")
	b.WriteString("  switch (spec) {\n")
	for _, raw := range raws {
		b.WriteString(fmt.Sprintf("    case %s: return __vraw__(%s);\n", jsString(raw), jsString(string(table[raw]))))
	}
	b.WriteString("    default: return __vraw__(spec);\n")
	b.WriteString("  }\n")
	b.WriteString("};\n")
	return b.String()
}

// toCommonJS transpiles source (already emitted JS, or a JS-family
// module needing no prior transpile) to CommonJS in isolation --
// api.Transform operates on one file with no cross-file resolution,
// unlike api.Build, which is exactly the narrower guarantee Assemble
// needs: each module becomes independently require()-able, and linking
// across modules is left entirely to the require() shim above.
func toCommonJS(source string, mt specifier.MediaType) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader: loaderFor(mt),
		Format: api.FormatCJS,
		Target: api.ESNext,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Text
		}
		return "", fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

func loaderFor(mt specifier.MediaType) api.Loader {
	switch mt {
	case specifier.TypeScript, specifier.Mts, specifier.Cts:
		return api.LoaderTS
	case specifier.TSX:
		return api.LoaderTSX
	case specifier.JSX:
		return api.LoaderJSX
	case specifier.Json:
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}

func jsString(s string) string {
	return strconv.Quote(s)
}
