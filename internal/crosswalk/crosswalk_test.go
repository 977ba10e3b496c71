package crosswalk

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/codex-engine/internal/relstore"
)

func seedStore(t *testing.T) *relstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.sqlite")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, s := range []string{
		`CREATE TABLE CONCEPT (concept_id INTEGER, concept_name TEXT, domain_id TEXT, vocabulary_id TEXT, concept_class_id TEXT, standard_concept TEXT, concept_code TEXT, invalid_reason TEXT)`,
		`CREATE TABLE CONCEPT_RELATIONSHIP (concept_id_1 INTEGER, concept_id_2 INTEGER, relationship_id TEXT, invalid_reason TEXT)`,
		`CREATE TABLE CONCEPT_ANCESTOR (ancestor_concept_id INTEGER, descendant_concept_id INTEGER, min_levels_of_separation INTEGER, max_levels_of_separation INTEGER)`,
		`INSERT INTO CONCEPT VALUES (312327, 'Acute myocardial infarction', 'Condition', 'SNOMED', 'Clinical Finding', 'S', '22298006', NULL)`,
		`INSERT INTO CONCEPT VALUES (999999, 'AMI, unspecified', 'Condition', 'ICD10CM', 'ICD10 code', NULL, 'I21.9', NULL)`,
		`INSERT INTO CONCEPT_RELATIONSHIP VALUES (999999, 312327, 'Maps to', NULL)`,
	} {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	store, err := relstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTranslateCode_WithVocabFilter(t *testing.T) {
	w := New(seedStore(t))

	snomed := "SNOMED"
	concepts := w.TranslateCode(999999, "Maps to", &snomed)
	require.Len(t, concepts, 1)
	require.Equal(t, int64(312327), concepts[0].ConceptID)
	require.Equal(t, "SNOMED", concepts[0].VocabularyID)
}

func TestTranslateCode_VocabMismatchReturnsEmpty(t *testing.T) {
	w := New(seedStore(t))

	rxnorm := "RxNorm"
	concepts := w.TranslateCode(999999, "Maps to", &rxnorm)
	require.Empty(t, concepts)
}

func TestCheckRelationship_DirectionIsStrict(t *testing.T) {
	w := New(seedStore(t))

	require.True(t, w.CheckRelationship(999999, 312327, "Maps to"))
	require.False(t, w.CheckRelationship(312327, 999999, "Maps to"), "reverse direction must not be implied")
}

func TestCheckRelationship_UnknownEdgeIsFalseNotError(t *testing.T) {
	w := New(seedStore(t))
	require.False(t, w.CheckRelationship(1, 2, "Maps to"))
}
