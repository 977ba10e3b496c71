// Package hierarchy answers descendant lookups over the pre-computed
// transitive closure table. Store failures are logged and swallowed to
// an empty result, consistent with the rest of the read path — hierarchy
// failures should not cascade to the caller.
package hierarchy

import (
	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/relstore"
)

// Hierarchy wraps the relational store's ancestor/descendant closure.
type Hierarchy struct {
	rel *relstore.Store
}

// New builds a Hierarchy over an already-opened relational store.
func New(rel *relstore.Store) *Hierarchy {
	return &Hierarchy{rel: rel}
}

// GetDescendants returns every descendant_concept_id for conceptID,
// including conceptID itself, per the closure table's reflexivity
// invariant. Internal store errors are swallowed to an empty slice with
// a logged warning.
func (h *Hierarchy) GetDescendants(conceptID int64) []int64 {
	log := logging.Get(logging.CategoryHierarchy)

	ids, err := h.rel.FetchDescendants(conceptID)
	if err != nil {
		log.Warn("descendant lookup failed", zap.Int64("concept_id", conceptID), zap.Error(err))
		return []int64{}
	}
	return ids
}
