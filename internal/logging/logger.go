// Package logging provides the structured, categorized logging used across
// Codex Engine. It wraps a single process-wide *zap.Logger and hands out
// named children scoped to a Category, the way the Manifest gate, Stores,
// Normalizer, Hierarchy, Cross-Walker, and Builder each need to attribute
// their log lines without threading a logger through every call site.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category groups log lines by the subsystem that emitted them.
type Category string

const (
	CategoryManifest   Category = "manifest"
	CategoryStore      Category = "store"
	CategoryVector     Category = "vector"
	CategoryEmbedding  Category = "embedding"
	CategoryNormalizer Category = "normalizer"
	CategoryHierarchy  Category = "hierarchy"
	CategoryCrosswalk  Category = "crosswalk"
	CategoryRuntime    Category = "runtime"
	CategoryBuilder    Category = "builder"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger = zap.NewNop()
	cache             = make(map[Category]*zap.Logger)
)

// Init installs the process-wide base logger. Call once at startup; it is
// safe to call again (e.g. to switch verbosity), which invalidates the
// per-category cache.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	cache = make(map[Category]*zap.Logger)
}

// Default builds a production logger (a development logger when verbose)
// and installs it.
func Default(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	Init(l)
	return l, nil
}

// Get returns the logger scoped to category, creating and caching it on
// first use.
func Get(category Category) *zap.Logger {
	mu.RLock()
	l, ok := cache[category]
	b := base
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := cache[category]; ok {
		return l
	}
	l = b.With(zap.String("category", string(category)))
	cache[category] = l
	return l
}

// Sync flushes the base logger. Callers should defer this at process exit.
func Sync() {
	mu.RLock()
	b := base
	mu.RUnlock()
	_ = b.Sync()
}
