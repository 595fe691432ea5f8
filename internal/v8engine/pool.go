//go:build v8

package v8engine

import (
	"fmt"
	"sync"

	v8 "github.com/tommie/v8go"
)

// v8Worker is a single pre-warmed V8 isolate+context pair in a root's
// pool. console accumulates whatever the bundle logged during its last
// run; Evaluate drains and clears it after each call.
type v8Worker struct {
	iso     *v8.Isolate
	ctx     *v8.Context
	rt      *v8Runtime
	console *consoleSink
	result  string
}

type consoleSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *consoleSink) record(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *consoleSink) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines
	c.lines = nil
	return lines
}

// v8Pool manages a fixed-size pool of identically-configured V8 workers
// for one root specifier's bundle.
type v8Pool struct {
	workers chan *v8Worker
	size    int
	mu      sync.Mutex
}

func newV8Pool(size int, bundledScript string, memoryLimitMB int) (*v8Pool, error) {
	pool := &v8Pool{workers: make(chan *v8Worker, size), size: size}
	for i := 0; i < size; i++ {
		w, err := newV8Worker(bundledScript, memoryLimitMB)
		if err != nil {
			pool.dispose()
			return nil, fmt.Errorf("creating pool worker %d: %w", i, err)
		}
		pool.workers <- w
	}
	return pool, nil
}

func newV8Worker(bundledScript string, memoryLimitMB int) (*v8Worker, error) {
	var iso *v8.Isolate
	if memoryLimitMB > 0 {
		heapSize := uint64(memoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	rt := &v8Runtime{iso: iso, ctx: ctx}
	console := &consoleSink{}

	if err := rt.RegisterFunc("__vgraph_log", console.record); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("registering console bridge: %w", err)
	}
	if _, err := ctx.RunScript(consoleBridgeJS, "console_bridge.js"); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("installing console bridge: %w", err)
	}

	script, err := iso.CompileUnboundScript(bundledScript, "bundle.js", v8.CompileOptions{})
	if err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("compiling bundle: %w", err)
	}
	val, err := script.Run(ctx)
	if err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("running bundle: %w", err)
	}
	ctx.PerformMicrotaskCheckpoint()

	result := ""
	if val != nil && !val.IsUndefined() && !val.IsNull() {
		result = val.String()
	}

	return &v8Worker{iso: iso, ctx: ctx, rt: rt, console: console, result: result}, nil
}

func (p *v8Pool) get() (*v8Worker, error) {
	w, ok := <-p.workers
	if !ok {
		return nil, fmt.Errorf("worker pool is closed")
	}
	return w, nil
}

func (p *v8Pool) put(w *v8Worker) {
	select {
	case p.workers <- w:
	default:
		w.ctx.Close()
		w.iso.Dispose()
	}
}

func (p *v8Pool) dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case w := <-p.workers:
			w.ctx.Close()
			w.iso.Dispose()
		default:
			return
		}
	}
}

const consoleBridgeJS = `
globalThis.console = {
	log: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
	error: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
	warn: function() { __vgraph_log(Array.prototype.slice.call(arguments).join(' ')); },
};
`
