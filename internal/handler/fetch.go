package handler

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

// FetchHandler resolves file:// specifiers from local disk and
// http(s):// specifiers over the network, keeping a brotli-compressed copy
// of every fetched source (local or remote) in an in-memory map, and
// negotiating HTTP/2 for remote fetches via golang.org/x/net/http2.
type FetchHandler struct {
	client *http.Client

	mu    sync.Mutex
	cache map[specifier.Specifier][]byte // brotli-compressed source bodies

	readFile func(path string) ([]byte, error)
}

// NewFetchHandler constructs a FetchHandler with a timeout-bound HTTP/2
// capable client. A publicsuffix-aware cookie jar is attached so a
// redirect chain that sets session cookies (common for registries that
// gate npm/jsr-flavored specifiers behind a login) keeps working across
// the handful of requests a single module fetch can involve.
func NewFetchHandler(timeout time.Duration, readFile func(path string) ([]byte, error)) *FetchHandler {
	transport := &http.Transport{}
	if err := http2.ConfigureTransport(transport); err != nil {
		log.Printf("handler: http2 configure failed, falling back to http/1.1: %v", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Printf("handler: cookie jar init failed, proceeding without one: %v", err)
	}
	return &FetchHandler{
		client:   &http.Client{Transport: transport, Timeout: timeout, Jar: jar},
		cache:    map[specifier.Specifier][]byte{},
		readFile: readFile,
	}
}

func (h *FetchHandler) Fetch(spec specifier.Specifier) (graph.CachedModule, error) {
	var source string
	var charset string

	canonical := spec

	switch spec.Scheme() {
	case "file":
		data, err := h.readFile(spec.Path())
		if err != nil {
			return graph.CachedModule{}, fmt.Errorf("handler: reading %s: %w", spec, err)
		}
		source = string(data)
	case "http", "https":
		body, cs, final, err := h.fetchRemote(spec)
		if err != nil {
			return graph.CachedModule{}, err
		}
		source, charset = body, cs
		canonical = final
	default:
		return graph.CachedModule{}, fmt.Errorf("handler: unsupported scheme %q for %s", spec.Scheme(), spec)
	}

	h.mu.Lock()
	h.cache[canonical] = compress(source)
	h.mu.Unlock()

	return graph.CachedModule{
		Specifier: canonical,
		MediaType: specifier.DetectMediaType(canonical.Path()),
		Source:    source,
		Charset:   charset,
	}, nil
}

// fetchRemote follows redirects via h.client and returns the canonical
// post-redirect specifier alongside the body -- resp.Request.URL reflects
// the final URL in the chain, which may differ from the one requested.
func (h *FetchHandler) fetchRemote(spec specifier.Specifier) (source, charset string, canonical specifier.Specifier, err error) {
	resp, err := h.client.Get(string(spec))
	if err != nil {
		return "", "", "", fmt.Errorf("handler: fetching %s: %w", spec, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("handler: fetching %s: status %d", spec, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", "", fmt.Errorf("handler: reading body of %s: %w", spec, err)
	}

	ct := resp.Header.Get("Content-Type")
	if idx := strings.Index(ct, "charset="); idx >= 0 {
		charset = strings.TrimSpace(ct[idx+len("charset="):])
	}

	final := spec
	if resp.Request != nil && resp.Request.URL != nil {
		final = specifier.Specifier(resp.Request.URL.String())
	}
	return string(body), charset, final, nil
}

// CachedSize returns the brotli-compressed byte length last stored for
// spec, or 0 if it has never been fetched.
func (h *FetchHandler) CachedSize(spec specifier.Specifier) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cache[spec])
}

// ReadCached returns the decompressed source last fetched for spec, or
// false if nothing has been cached yet.
func (h *FetchHandler) ReadCached(spec specifier.Specifier) (string, bool) {
	h.mu.Lock()
	compressed, ok := h.cache[spec]
	h.mu.Unlock()
	if !ok {
		return "", false
	}
	source, err := decompress(compressed)
	if err != nil {
		return "", false
	}
	return source, true
}

func (h *FetchHandler) SetDeps(specifier.Specifier, map[string]graph.Dependency) error { return nil }
func (h *FetchHandler) SetTypes(specifier.Specifier, specifier.Specifier) error         { return nil }
func (h *FetchHandler) SetCache(specifier.Specifier, graph.EmitType, graph.Emit) error  { return nil }
func (h *FetchHandler) SetBuildInfo(specifier.Specifier, graph.EmitType, string) error  { return nil }

func compress(source string) []byte {
	var buf strings.Builder
	w := brotli.NewWriter(&buf)
	_, _ = io.WriteString(w, source)
	_ = w.Close()
	return []byte(buf.String())
}

func decompress(data []byte) (string, error) {
	r := brotli.NewReader(strings.NewReader(string(data)))
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
