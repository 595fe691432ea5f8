// Package lockfile implements the content-addressed lock used to pin
// remote module sources. Deliberately scoped to the single
// check_or_insert contract the module graph actually needs -- a far
// larger npm/workspace-aware lockfile would have no use here.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Lockfile maps a specifier string to the hex-encoded SHA-256 hash of the
// source last seen for it.
type Lockfile struct {
	mu       sync.Mutex
	path     string
	entries  map[string]string
	WriteNew bool // true once any entry was inserted rather than matched
}

type document struct {
	Version string            `json:"version"`
	Modules map[string]string `json:"modules"`
}

// New returns an empty, unbacked lockfile (never read from or written to
// disk -- useful for tests and in-memory builds).
func New() *Lockfile {
	return &Lockfile{entries: map[string]string{}}
}

// Load reads a lockfile document from path. A missing file yields an
// empty lockfile bound to that path, ready to be populated and saved.
func Load(path string) (*Lockfile, error) {
	l := &Lockfile{path: path, entries: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	if doc.Modules != nil {
		l.entries = doc.Modules
	}
	return l, nil
}

// Path returns the backing file path, or "" for an unbacked lockfile
// created with New.
func (l *Lockfile) Path() string {
	return l.path
}

// Save persists the lockfile document back to its path.
func (l *Lockfile) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" {
		return fmt.Errorf("lockfile has no backing path")
	}
	doc := document{Version: "1", Modules: l.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", l.path, err)
	}
	return nil
}

// CheckOrInsert hashes source and compares it against the stored hash for
// spec. If no entry exists yet, the hash is inserted and true is
// returned (first-seen trust-on-first-use). If an entry exists, true is
// returned only when the hash matches.
func (l *Lockfile) CheckOrInsert(spec string, source string) bool {
	hash := hashSource(source)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.entries[spec]
	if !ok {
		l.entries[spec] = hash
		l.WriteNew = true
		return true
	}
	return existing == hash
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
