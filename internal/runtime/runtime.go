// Package runtime owns the process-wide Runtime Context: the singleton
// holder of the opened relational store, vector store, and the query
// components built over them. initialize is not re-entrant — a failing
// re-initialize must leave the prior, successfully published context
// untouched, per spec.md §4.6's state machine.
package runtime

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/crosswalk"
	"github.com/CoReason-AI/codex-engine/internal/embedding"
	"github.com/CoReason-AI/codex-engine/internal/hierarchy"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/manifest"
	"github.com/CoReason-AI/codex-engine/internal/model"
	"github.com/CoReason-AI/codex-engine/internal/normalizer"
	"github.com/CoReason-AI/codex-engine/internal/relstore"
	"github.com/CoReason-AI/codex-engine/internal/vecstore"
)

// RelstoreFilename and VecstoreDir are the fixed relative paths inside a
// pack directory, per spec.md §6's pack layout.
const (
	RelstoreFilename = "vocab.sqlite"
	VecstoreDir      = "vectors.vecdir"
)

// Context is the immutable, fully-initialized set of handles and query
// components a process runs queries against. Once published, it is
// never mutated; a re-initialize builds a brand new Context and
// atomically swaps it in.
type Context struct {
	Manifest    model.Manifest
	rel         *relstore.Store
	vec         *vecstore.Store
	Normalizer  *normalizer.Normalizer
	Hierarchy   *hierarchy.Hierarchy
	CrossWalker *crosswalk.CrossWalker
}

var current atomic.Pointer[Context]
var initMu sync.Mutex

// Initialize loads and verifies the pack at packDir, opens both stores,
// and builds the query components, publishing the result only if every
// stage succeeds. embedder is injected by the caller (built from
// config.EmbeddingConfig) since the embedding model is opaque to this
// core. On any failure, all handles opened during this call are closed
// before returning, and the previously published Context (if any) is
// left untouched.
func Initialize(packDir string, embedder embedding.Embedder) error {
	initMu.Lock()
	defer initMu.Unlock()

	log := logging.Get(logging.CategoryRuntime)

	m, err := manifest.Load(packDir)
	if err != nil {
		return err
	}
	if err := manifest.VerifyIntegrity(packDir, m); err != nil {
		return err
	}

	// The relational and vector stores are independent on-disk handles;
	// opening them concurrently shaves the slower of two disk opens off
	// initialize's latency instead of paying for both in sequence.
	var rel *relstore.Store
	var vec *vecstore.Store
	g := new(errgroup.Group)
	g.Go(func() error {
		var openErr error
		rel, openErr = relstore.Open(filepath.Join(packDir, RelstoreFilename))
		return openErr
	})
	g.Go(func() error {
		var openErr error
		vec, openErr = vecstore.Open(filepath.Join(packDir, VecstoreDir), embedder.Dimensions())
		return openErr
	})
	if err := g.Wait(); err != nil {
		if rel != nil {
			rel.Close()
		}
		if vec != nil {
			vec.Close()
		}
		return err
	}

	ctx := &Context{
		Manifest: model.Manifest{
			Version:    m.Version,
			SourceDate: m.SourceDate,
			Checksums:  m.Checksums,
		},
		rel:         rel,
		vec:         vec,
		Normalizer:  normalizer.New(rel, vec, embedder),
		Hierarchy:   hierarchy.New(rel),
		CrossWalker: crosswalk.New(rel),
	}

	prior := current.Swap(ctx)
	if prior != nil {
		prior.rel.Close()
		prior.vec.Close()
	}

	log.Info("runtime context initialized", zap.String("version", m.Version))
	return nil
}

// Get returns the currently published Context, or NotInitialized if
// Initialize has never succeeded.
func Get() (*Context, error) {
	ctx := current.Load()
	if ctx == nil {
		return nil, codexerr.New(codexerr.NotInitialized, "")
	}
	return ctx, nil
}
