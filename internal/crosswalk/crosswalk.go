// Package crosswalk translates codes between vocabularies via directed
// ConceptRelationship edges and answers exact edge-existence checks.
// Direction is strict: CheckRelationship(a, b, r) does not imply
// CheckRelationship(b, a, r).
package crosswalk

import (
	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/model"
	"github.com/CoReason-AI/codex-engine/internal/relstore"
)

// CrossWalker wraps the relational store's relationship traversal.
type CrossWalker struct {
	rel *relstore.Store
}

// New builds a CrossWalker over an already-opened relational store.
func New(rel *relstore.Store) *CrossWalker {
	return &CrossWalker{rel: rel}
}

// TranslateCode joins ConceptRelationship (from sourceID, active) with
// Concept (active) where relationship_id matches, optionally filtering
// the target by vocabulary. Internal store errors are swallowed to an
// empty slice with a logged warning.
func (w *CrossWalker) TranslateCode(sourceID int64, relationship string, targetVocab *string) []model.Concept {
	log := logging.Get(logging.CategoryCrosswalk)

	concepts, err := w.rel.FetchTranslations(sourceID, relationship, targetVocab)
	if err != nil {
		log.Warn("translation lookup failed", zap.Int64("source_id", sourceID), zap.String("relationship", relationship), zap.Error(err))
		return []model.Concept{}
	}
	return concepts
}

// CheckRelationship reports whether an active edge exists in that exact
// direction with that exact relationship_id. Internal store errors are
// swallowed to false with a logged warning.
func (w *CrossWalker) CheckRelationship(src, dst int64, relationship string) bool {
	log := logging.Get(logging.CategoryCrosswalk)

	ok, err := w.rel.CheckEdge(src, dst, relationship)
	if err != nil {
		log.Warn("edge check failed", zap.Int64("src", src), zap.Int64("dst", dst), zap.String("relationship", relationship), zap.Error(err))
		return false
	}
	return ok
}
