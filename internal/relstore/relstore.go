// Package relstore is the relational half of the Artifact Stores
// component: a read-only, thread-safe handle over the columnar vocabulary
// tables (CONCEPT, CONCEPT_RELATIONSHIP, CONCEPT_ANCESTOR), backed by
// modernc.org/sqlite. Every query is parameterized; none string-concatenate
// caller-controlled values, per spec.md §4.2.
package relstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/model"
)

// Store wraps a read-only SQLite connection pool. Safe for
// concurrent use from multiple goroutines once constructed.
type Store struct {
	db *sql.DB
}

// Open opens path read-only and verifies the expected tables exist.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryStore)

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, codexerr.Wrap(codexerr.StoreOpenFailed, path, err)
	}
	// A read-only vocabulary store is queried from many goroutines at
	// once; SQLite handles concurrent readers fine on a single *sql.DB.
	db.SetMaxOpenConns(4)

	for _, table := range []string{"CONCEPT", "CONCEPT_RELATIONSHIP", "CONCEPT_ANCESTOR"} {
		if _, err := db.Exec(fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table)); err != nil {
			db.Close()
			return nil, codexerr.Wrap(codexerr.StoreOpenFailed, table, err)
		}
	}

	log.Info("relational store opened")
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchConceptsByIDs returns the Concept rows for the given ids. Ids with
// no matching row are simply absent from the result (resilience, not an
// error — spec.md §4.3 step 6).
func (s *Store) FetchConceptsByIDs(ids []int64) ([]model.Concept, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT concept_id, concept_name, domain_id, vocabulary_id, concept_class_id,
		       COALESCE(standard_concept, ''), concept_code, COALESCE(invalid_reason, '')
		FROM CONCEPT
		WHERE concept_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Concept
	for rows.Next() {
		var c model.Concept
		if err := rows.Scan(&c.ConceptID, &c.ConceptName, &c.DomainID, &c.VocabularyID,
			&c.ConceptClassID, &c.StandardConcept, &c.ConceptCode, &c.InvalidReason); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchDescendants returns every descendant_concept_id where
// ancestor_concept_id = ancestorID, including the concept itself.
func (s *Store) FetchDescendants(ancestorID int64) ([]int64, error) {
	rows, err := s.db.Query(
		"SELECT ancestor_concept_id, descendant_concept_id, min_levels_of_separation, max_levels_of_separation "+
			"FROM CONCEPT_ANCESTOR WHERE ancestor_concept_id = ?",
		ancestorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var a model.ConceptAncestor
		if err := rows.Scan(&a.AncestorConceptID, &a.DescendantConceptID,
			&a.MinLevelsOfSeparation, &a.MaxLevelsOfSeparation); err != nil {
			return nil, err
		}
		out = append(out, a.DescendantConceptID)
	}
	return out, rows.Err()
}

// FetchTranslations joins CONCEPT_RELATIONSHIP with CONCEPT, requiring
// both sides active, and optionally filters the target by vocabulary.
func (s *Store) FetchTranslations(sourceID int64, relationship string, targetVocab *string) ([]model.Concept, error) {
	query := `
		SELECT c.concept_id, c.concept_name, c.domain_id, c.vocabulary_id, c.concept_class_id,
		       COALESCE(c.standard_concept, ''), c.concept_code, COALESCE(c.invalid_reason, '')
		FROM CONCEPT_RELATIONSHIP cr
		JOIN CONCEPT c ON cr.concept_id_2 = c.concept_id
		WHERE cr.concept_id_1 = ?
		  AND cr.relationship_id = ?
		  AND cr.invalid_reason IS NULL
		  AND c.invalid_reason IS NULL`

	args := []interface{}{sourceID, relationship}
	if targetVocab != nil {
		query += " AND c.vocabulary_id = ?"
		args = append(args, *targetVocab)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Concept
	for rows.Next() {
		var c model.Concept
		if err := rows.Scan(&c.ConceptID, &c.ConceptName, &c.DomainID, &c.VocabularyID,
			&c.ConceptClassID, &c.StandardConcept, &c.ConceptCode, &c.InvalidReason); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CheckEdge probes whether an active edge exists in that exact direction
// with that exact relationship_id.
func (s *Store) CheckEdge(src, dst int64, relationship string) (bool, error) {
	rows, err := s.db.Query(`
		SELECT concept_id_1, concept_id_2, relationship_id, invalid_reason
		FROM CONCEPT_RELATIONSHIP
		WHERE concept_id_1 = ? AND concept_id_2 = ? AND relationship_id = ?`, src, dst, relationship)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var edge model.ConceptRelationship
		var invalidReason sql.NullString
		if err := rows.Scan(&edge.ConceptID1, &edge.ConceptID2, &edge.RelationshipID, &invalidReason); err != nil {
			return false, err
		}
		edge.InvalidReason = invalidReason.String
		if edge.IsActive() {
			return true, nil
		}
	}
	return false, rows.Err()
}

// FetchStandardMappings returns, for each id in sourceIDs that has one, the
// target of one valid "Maps to" edge. The spec does not define a tie-break
// when multiple valid targets exist; this returns whichever SQLite visits
// first.
func (s *Store) FetchStandardMappings(sourceIDs []int64) (map[int64]int64, error) {
	if len(sourceIDs) == 0 {
		return map[int64]int64{}, nil
	}

	placeholders := make([]string, len(sourceIDs))
	args := make([]interface{}, 0, len(sourceIDs)+1)
	args = append(args, model.MapsTo)
	for i, id := range sourceIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT cr.concept_id_1, cr.concept_id_2, cr.relationship_id, cr.invalid_reason
		FROM CONCEPT_RELATIONSHIP cr
		JOIN CONCEPT c ON cr.concept_id_2 = c.concept_id
		WHERE cr.relationship_id = ?
		  AND c.invalid_reason IS NULL
		  AND c.standard_concept = 'S'
		  AND cr.concept_id_1 IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var edge model.ConceptRelationship
		var invalidReason sql.NullString
		if err := rows.Scan(&edge.ConceptID1, &edge.ConceptID2, &edge.RelationshipID, &invalidReason); err != nil {
			return nil, err
		}
		edge.InvalidReason = invalidReason.String
		if !edge.IsActive() {
			continue
		}
		if _, ok := out[edge.ConceptID1]; !ok {
			out[edge.ConceptID1] = edge.ConceptID2
		}
	}
	return out, rows.Err()
}
