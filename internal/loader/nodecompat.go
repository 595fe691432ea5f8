package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hostedat/vgraph/internal/specifier"
)

// Pinned versions of unenv and its dependencies -- the Node.js
// compatibility layer standalone binaries download for node: specifier
// resolution.
const (
	unenvVersion           = "1.10.0"
	patheVersion           = "2.0.3"
	consolaVersion         = "3.4.2"
	defuVersion            = "6.1.4"
	nodeFetchNativeVersion = "1.6.6"
	mimeVersion            = "3.0.0"

	MaxPolyfillDownloadSize = 50 * 1024 * 1024 // 50 MB
)

var polyfillPackages = []struct {
	name    string
	version string
}{
	{"unenv", unenvVersion},
	{"pathe", patheVersion},
	{"consola", consolaVersion},
	{"defu", defuVersion},
	{"node-fetch-native", nodeFetchNativeVersion},
	{"mime", mimeVersion},
}

// PolyfillHashes maps download URLs to expected SHA-256 hex digests.
// Empty map means integrity checking is opt-in.
var PolyfillHashes = map[string]string{}

// nodeCompatModules lists Node.js built-in modules unenv polyfills, each
// mapping to unenv/runtime/node/{name}/index.mjs -- the Loader's
// fallback when the module graph's own resolution (import map, URL
// resolution, scheme policy) hits a node: specifier none of those steps
// understand.
var nodeCompatModules = []string{
	"async_hooks", "buffer", "crypto", "events", "fs", "http", "https",
	"module", "net", "os", "path", "process", "stream", "string_decoder",
	"url", "util",
}

var (
	resolvedUnenvPath string
	resolveUnenvOnce  sync.Once
)

// DataDir is the base directory for cached polyfills. Defaults to "./data".
var DataDir = "./data"

// FindUnenvPath returns the absolute path to the unenv package directory,
// or an empty string if unenv is not available. The result is cached.
//
// It first checks the VGRAPH_UNENV_PATH env var, then auto-downloads
// unenv and its dependencies from the npm registry if needed.
func FindUnenvPath() string {
	resolveUnenvOnce.Do(func() {
		if envPath := os.Getenv("VGRAPH_UNENV_PATH"); envPath != "" {
			if info, err := os.Stat(filepath.Join(envPath, "runtime", "node")); err == nil && info.IsDir() {
				resolvedUnenvPath = envPath
			}
			return
		}

		unenvDir, err := EnsureUnenv(DataDir)
		if err != nil {
			log.Printf("loader: failed to ensure unenv polyfills: %v", err)
			return
		}
		resolvedUnenvPath = unenvDir
	})
	return resolvedUnenvPath
}

// ResetUnenvCache clears the cached unenv path so the next FindUnenvPath
// call resolves it again.
func ResetUnenvCache() {
	resolveUnenvOnce = sync.Once{}
	resolvedUnenvPath = ""
}

// nodeCompatPath returns the on-disk polyfill file for a "node:x" or bare
// "x" built-in specifier, if unenv is available and knows it.
func nodeCompatPath(raw string) (string, bool) {
	name := strings.TrimPrefix(raw, "node:")
	known := false
	for _, m := range nodeCompatModules {
		if m == name {
			known = true
			break
		}
	}
	if !known {
		return "", false
	}
	unenvDir := FindUnenvPath()
	if unenvDir == "" {
		return "", false
	}
	return filepath.Join(unenvDir, "runtime", "node", name, "index.mjs"), true
}

// EnsureUnenv downloads unenv and its dependencies from the npm registry
// into {dataDir}/polyfills/node_modules/ if not already present. Returns
// the path to the unenv package directory.
func EnsureUnenv(dataDir string) (string, error) {
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolving data dir: %w", err)
	}
	nodeModules := filepath.Join(absDataDir, "polyfills", "node_modules")
	unenvDir := filepath.Join(nodeModules, "unenv")
	checkDir := filepath.Join(unenvDir, "runtime", "node")

	if info, err := os.Stat(checkDir); err == nil && info.IsDir() {
		return unenvDir, nil
	}

	log.Printf("loader: downloading unenv polyfills...")

	tmpDir, err := os.MkdirTemp(absDataDir, "polyfills-tmp-*")
	if err != nil {
		if mkErr := os.MkdirAll(absDataDir, 0755); mkErr != nil {
			return "", fmt.Errorf("creating data dir %s: %w", absDataDir, mkErr)
		}
		tmpDir, err = os.MkdirTemp(absDataDir, "polyfills-tmp-*")
		if err != nil {
			return "", fmt.Errorf("creating temp dir: %w", err)
		}
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	tmpNodeModules := filepath.Join(tmpDir, "node_modules")
	if err := os.MkdirAll(tmpNodeModules, 0755); err != nil {
		return "", fmt.Errorf("creating temp node_modules: %w", err)
	}

	for _, pkg := range polyfillPackages {
		url := fmt.Sprintf("https://registry.npmjs.org/%s/-/%s-%s.tgz", pkg.name, pkg.name, pkg.version)
		destDir := filepath.Join(tmpNodeModules, pkg.name)
		if err := DownloadAndExtract(url, destDir); err != nil {
			return "", fmt.Errorf("downloading %s@%s: %w", pkg.name, pkg.version, err)
		}
	}

	finalDir := filepath.Join(absDataDir, "polyfills")
	if err := os.MkdirAll(filepath.Dir(finalDir), 0755); err != nil {
		return "", fmt.Errorf("creating parent dir: %w", err)
	}
	_ = os.RemoveAll(finalDir)

	if err := os.Rename(tmpDir, finalDir); err != nil {
		return "", fmt.Errorf("moving polyfills into place: %w", err)
	}

	log.Printf("loader: unenv polyfills installed to %s", finalDir)
	return filepath.Join(finalDir, "node_modules", "unenv"), nil
}

// unenvNodeResolver implements NodeResolver for node: built-ins only,
// backed by the same unenv polyfill set the old bundler plugin aliased
// node: specifiers to. It never claims a real npm package as its own:
// IsInNpmPackage and IsCJS both report false, so Resolve's node_modules
// branches fall through to a configured NpmReqResolver instead of being
// silently swallowed here.
type unenvNodeResolver struct{}

// DefaultNodeResolver returns the NodeResolver a standalone binary uses
// out of the box: node: built-ins resolve to the on-disk unenv polyfill
// downloaded by EnsureUnenv, and everything else is left to whatever
// NpmReqResolver/WorkspaceResolver the caller configures.
func DefaultNodeResolver() NodeResolver {
	return unenvNodeResolver{}
}

func (unenvNodeResolver) ResolveRequire(raw string, referrerDir string, mode ResolutionKind) (specifier.Specifier, error) {
	if path, ok := nodeCompatPath(raw); ok {
		return specifier.Parse("file://" + path)
	}
	return "", fmt.Errorf("loader: %q is not a known node: built-in (referrer dir %s)", raw, referrerDir)
}

func (unenvNodeResolver) IsInNpmPackage(specifier.Specifier) bool { return false }
func (unenvNodeResolver) IsCJS(specifier.Specifier) bool          { return false }

// DownloadAndExtract fetches an npm tarball and extracts it to destDir,
// stripping the leading "package/" prefix npm tarballs use.
func DownloadAndExtract(url, destDir string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPolyfillDownloadSize+1))
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if int64(len(body)) > MaxPolyfillDownloadSize {
		return fmt.Errorf("polyfill download too large: %s (>%d bytes)", url, MaxPolyfillDownloadSize)
	}

	if expectedHash, ok := PolyfillHashes[url]; ok {
		actualHash := sha256.Sum256(body)
		if hex.EncodeToString(actualHash[:]) != expectedHash {
			return fmt.Errorf("integrity check failed for %s: expected %s, got %s", url, expectedHash, hex.EncodeToString(actualHash[:]))
		}
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("decompressing: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := hdr.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, destDir+string(filepath.Separator)) && target != destDir {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
