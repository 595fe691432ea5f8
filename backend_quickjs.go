//go:build !v8

package vgraph

import (
	"github.com/hostedat/vgraph/internal/core"
	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/quickjs"
)

func newBackend(cfg core.EngineConfig, handler graph.SpecifierHandler) core.GraphEngine {
	return quickjs.NewEngine(cfg, handler)
}
