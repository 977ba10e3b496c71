// Package normalizer implements the hybrid vector+relational retrieval
// path: free text in, CodexMatch results out. It is the hardest
// subsystem in Codex Engine — it fuses approximate vector search with
// exact relational hydration while preserving per-candidate similarity
// semantics, then elevates non-standard matches to their Standard
// mapping in one additional batched query.
package normalizer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/embedding"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/model"
	"github.com/CoReason-AI/codex-engine/internal/relstore"
	"github.com/CoReason-AI/codex-engine/internal/vecstore"
)

// domainFilterPattern whitelists the only characters a domain_filter may
// contain, since it flows into a push-down predicate against the vector
// store. Anything else is a hard failure, not a sanitization attempt.
var domainFilterPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// defaultK is used when callers pass k <= 0.
const defaultK = 10

// Normalizer maps free text to CodexMatch results.
type Normalizer struct {
	rel      *relstore.Store
	vec      *vecstore.Store
	embedder embedding.Embedder
}

// New builds a Normalizer over already-opened stores and an Embedder.
func New(rel *relstore.Store, vec *vecstore.Store, embedder embedding.Embedder) *Normalizer {
	return &Normalizer{rel: rel, vec: vec, embedder: embedder}
}

// Normalize runs the full eight-step contract from spec.md §4.3.
func (n *Normalizer) Normalize(ctx context.Context, text string, k int, domainFilter *string) ([]model.CodexMatch, error) {
	log := logging.Get(logging.CategoryNormalizer)

	// Step 1: trim & guard.
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	if k <= 0 {
		k = defaultK
	}

	// Step 2: domain validation.
	if domainFilter != nil && !domainFilterPattern.MatchString(*domainFilter) {
		return nil, codexerr.New(codexerr.InvalidInput, "domain_filter")
	}

	// Step 3: embed.
	vector, err := n.embedder.Embed(ctx, trimmed)
	if err != nil {
		return nil, codexerr.Wrap(codexerr.EmbedderFailure, "embed", err)
	}
	if len(vector) != n.vec.Dimensions() {
		return nil, codexerr.New(codexerr.EmbedderFailure, "embedder returned the wrong dimension")
	}

	// Step 4: approximate retrieval.
	var prefilter *vecstore.Prefilter
	if domainFilter != nil {
		prefilter = &vecstore.Prefilter{Field: "domain_id", Value: *domainFilter}
	}
	candidates, err := n.vec.Nearest(vector, k, prefilter)
	if err != nil {
		return nil, codexerr.Wrap(codexerr.EmbedderFailure, "vector search", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Step 5: score keying — first (best) occurrence wins.
	bestSimilarity := make(map[int64]float64, len(candidates))
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := bestSimilarity[c.ConceptID]; seen {
			continue
		}
		bestSimilarity[c.ConceptID] = vecstore.Similarity(c.Distance)
		ids = append(ids, c.ConceptID)
	}

	// Step 6: hydration.
	concepts, err := n.rel.FetchConceptsByIDs(ids)
	if err != nil {
		return nil, codexerr.Wrap(codexerr.EmbedderFailure, "hydration", err)
	}
	if domainFilter != nil {
		filtered := concepts[:0]
		for _, c := range concepts {
			if c.DomainID == *domainFilter {
				filtered = append(filtered, c)
			}
		}
		concepts = filtered
	}
	if len(concepts) == 0 {
		return nil, nil
	}

	// Step 7: standard elevation, batched.
	var nonStandardIDs []int64
	for _, c := range concepts {
		if !c.IsStandard() {
			nonStandardIDs = append(nonStandardIDs, c.ConceptID)
		}
	}
	mappings := map[int64]int64{}
	if len(nonStandardIDs) > 0 {
		m, err := n.rel.FetchStandardMappings(nonStandardIDs)
		if err != nil {
			log.Warn("standard mapping lookup failed, continuing without elevation", zap.Error(err))
		} else {
			mappings = m
		}
	}

	// Step 8: construct & sort.
	matches := make([]model.CodexMatch, 0, len(concepts))
	for _, c := range concepts {
		match := model.CodexMatch{
			InputText:       trimmed,
			MatchConcept:    c,
			SimilarityScore: bestSimilarity[c.ConceptID],
			IsStandard:      c.IsStandard(),
		}
		if !match.IsStandard {
			if target, ok := mappings[c.ConceptID]; ok {
				t := target
				match.MappedStandardID = &t
			}
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})

	return matches, nil
}
