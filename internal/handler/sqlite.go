package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/hostedat/vgraph/internal/graph"
	"github.com/hostedat/vgraph/internal/specifier"
)

// moduleRow is the gorm model backing the persistent build cache. One row
// per specifier, with dependency/types/emit side-tables flattened to JSON
// columns rather than a normalized schema -- this cache is read wholesale
// per module, never queried by field.
type moduleRow struct {
	Specifier   string `gorm:"primaryKey"`
	MediaType   int
	Source      string
	Charset     string
	DepsJSON    string
	TypesJSON   string
	EmitsJSON   string
	UpdatedAt   time.Time
}

func (moduleRow) TableName() string { return "modules" }

type buildInfoRow struct {
	Specifier string `gorm:"primaryKey"`
	EmitType  int    `gorm:"primaryKey"`
	Info      string
}

func (buildInfoRow) TableName() string { return "build_info" }

// SQLiteHandler persists fetched sources, recorded dependency/type
// information, and transpile emits across runs, wrapping an upstream
// SpecifierHandler (typically a FetchHandler) as the source of truth on a
// cache miss.
type SQLiteHandler struct {
	db   *gorm.DB
	next graph.SpecifierHandler

	mu sync.Mutex
}

// NewSQLiteHandler opens (or creates) a cache database at path and wraps
// next for cache-miss fetches.
func NewSQLiteHandler(path string, next graph.SpecifierHandler) (*SQLiteHandler, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("handler: opening cache db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&moduleRow{}, &buildInfoRow{}); err != nil {
		return nil, fmt.Errorf("handler: migrating cache db: %w", err)
	}
	return &SQLiteHandler{db: db, next: next}, nil
}

func (h *SQLiteHandler) Fetch(spec specifier.Specifier) (graph.CachedModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var row moduleRow
	err := h.db.Where("specifier = ?", string(spec)).First(&row).Error
	if err == nil {
		return rowToCached(spec, row)
	}
	if err != gorm.ErrRecordNotFound {
		log.Printf("handler: sqlite lookup failed for %s, falling through to origin: %v", spec, err)
	}

	cached, err := h.next.Fetch(spec)
	if err != nil {
		return graph.CachedModule{}, err
	}

	row = moduleRow{
		Specifier: string(spec),
		MediaType: int(cached.MediaType),
		Source:    cached.Source,
		Charset:   cached.Charset,
		UpdatedAt: time.Now(),
	}
	if err := h.db.Save(&row).Error; err != nil {
		log.Printf("handler: caching %s failed: %v", spec, err)
	}
	return cached, nil
}

func (h *SQLiteHandler) SetDeps(spec specifier.Specifier, deps map[string]graph.Dependency) error {
	payload, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("handler: encoding deps for %s: %w", spec, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Model(&moduleRow{}).Where("specifier = ?", string(spec)).Update("deps_json", string(payload)).Error
}

func (h *SQLiteHandler) SetTypes(spec specifier.Specifier, types specifier.Specifier) error {
	payload, _ := json.Marshal(types)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Model(&moduleRow{}).Where("specifier = ?", string(spec)).Update("types_json", string(payload)).Error
}

func (h *SQLiteHandler) SetCache(spec specifier.Specifier, emitType graph.EmitType, emit graph.Emit) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var row moduleRow
	if err := h.db.Where("specifier = ?", string(spec)).First(&row).Error; err != nil {
		return fmt.Errorf("handler: setting cache for unknown module %s: %w", spec, err)
	}

	emits := map[graph.EmitType]graph.Emit{}
	if row.EmitsJSON != "" {
		_ = json.Unmarshal([]byte(row.EmitsJSON), &emits)
	}
	emits[emitType] = emit
	payload, err := json.Marshal(emits)
	if err != nil {
		return fmt.Errorf("handler: encoding emits for %s: %w", spec, err)
	}
	return h.db.Model(&moduleRow{}).Where("specifier = ?", string(spec)).Update("emits_json", string(payload)).Error
}

func (h *SQLiteHandler) SetBuildInfo(spec specifier.Specifier, emitType graph.EmitType, buildInfo string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	row := buildInfoRow{Specifier: string(spec), EmitType: int(emitType), Info: buildInfo}
	return h.db.Save(&row).Error
}

func rowToCached(spec specifier.Specifier, row moduleRow) (graph.CachedModule, error) {
	cached := graph.CachedModule{
		Specifier: spec,
		MediaType: specifier.MediaType(row.MediaType),
		Source:    row.Source,
		Charset:   row.Charset,
	}
	if row.DepsJSON != "" {
		var deps map[string]graph.Dependency
		if err := json.Unmarshal([]byte(row.DepsJSON), &deps); err == nil {
			cached.MaybeDependencies = deps
		}
	}
	if row.TypesJSON != "" {
		var t specifier.Specifier
		if err := json.Unmarshal([]byte(row.TypesJSON), &t); err == nil && t != "" {
			cached.MaybeTypes = &t
		}
	}
	if row.EmitsJSON != "" {
		var emits map[graph.EmitType]graph.Emit
		if err := json.Unmarshal([]byte(row.EmitsJSON), &emits); err == nil {
			cached.Emits = emits
		}
	}
	return cached, nil
}
