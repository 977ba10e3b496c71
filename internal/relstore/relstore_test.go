package relstore

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// seedStore creates a fresh SQLite file with the three vocabulary tables
// populated with a small, hand-built concept graph:
//
//	312327 "Acute myocardial infarction"        SNOMED   standard
//	999999 "AMI, unspecified"                   ICD10CM  non-standard, Maps to 312327
//	201820 "Type 2 diabetes mellitus"           SNOMED   standard, descendant of 312327 (for hierarchy coverage)
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.sqlite")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE CONCEPT (concept_id INTEGER, concept_name TEXT, domain_id TEXT, vocabulary_id TEXT, concept_class_id TEXT, standard_concept TEXT, concept_code TEXT, invalid_reason TEXT)`,
		`CREATE TABLE CONCEPT_RELATIONSHIP (concept_id_1 INTEGER, concept_id_2 INTEGER, relationship_id TEXT, invalid_reason TEXT)`,
		`CREATE TABLE CONCEPT_ANCESTOR (ancestor_concept_id INTEGER, descendant_concept_id INTEGER, min_levels_of_separation INTEGER, max_levels_of_separation INTEGER)`,
		`INSERT INTO CONCEPT VALUES (312327, 'Acute myocardial infarction', 'Condition', 'SNOMED', 'Clinical Finding', 'S', '22298006', NULL)`,
		`INSERT INTO CONCEPT VALUES (999999, 'AMI, unspecified', 'Condition', 'ICD10CM', 'ICD10 code', NULL, 'I21.9', NULL)`,
		`INSERT INTO CONCEPT VALUES (201820, 'Type 2 diabetes mellitus', 'Condition', 'SNOMED', 'Clinical Finding', 'S', '44054006', NULL)`,
		`INSERT INTO CONCEPT VALUES (1503297, 'Metformin', 'Drug', 'RxNorm', 'Ingredient', 'S', '6809', NULL)`,
		`INSERT INTO CONCEPT_RELATIONSHIP VALUES (999999, 312327, 'Maps to', NULL)`,
		`INSERT INTO CONCEPT_ANCESTOR VALUES (312327, 312327, 0, 0)`,
		`INSERT INTO CONCEPT_ANCESTOR VALUES (312327, 201820, 1, 1)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func TestOpen_RejectsMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE CONCEPT (concept_id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
}

func TestFetchConceptsByIDs(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	concepts, err := store.FetchConceptsByIDs([]int64{312327, 999999, 777})
	require.NoError(t, err)
	require.Len(t, concepts, 2, "unknown id 777 is simply absent, not an error")

	byID := map[int64]string{}
	for _, c := range concepts {
		byID[c.ConceptID] = c.ConceptName
	}
	require.Equal(t, "Acute myocardial infarction", byID[312327])
	require.Equal(t, "AMI, unspecified", byID[999999])
}

func TestFetchConceptsByIDs_Empty(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	concepts, err := store.FetchConceptsByIDs(nil)
	require.NoError(t, err)
	require.Empty(t, concepts)
}

func TestFetchDescendants_IncludesSelf(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	ids, err := store.FetchDescendants(312327)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{312327, 201820}, ids)
}

func TestFetchTranslations_WithVocabFilter(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	snomed := "SNOMED"
	concepts, err := store.FetchTranslations(999999, "Maps to", &snomed)
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	require.Equal(t, int64(312327), concepts[0].ConceptID)

	rxnorm := "RxNorm"
	concepts, err = store.FetchTranslations(999999, "Maps to", &rxnorm)
	require.NoError(t, err)
	require.Empty(t, concepts)
}

func TestCheckEdge_Directional(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	ok, err := store.CheckEdge(999999, 312327, "Maps to")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.CheckEdge(312327, 999999, "Maps to")
	require.NoError(t, err)
	require.False(t, ok, "edges are directional; the reverse is not implied")
}

func TestFetchStandardMappings(t *testing.T) {
	store, err := Open(seedStore(t))
	require.NoError(t, err)
	defer store.Close()

	mappings, err := store.FetchStandardMappings([]int64{999999, 312327})
	require.NoError(t, err)
	require.Equal(t, int64(312327), mappings[999999])
	_, hasStandard := mappings[312327]
	require.False(t, hasStandard, "a standard concept has no Maps to mapping of its own in this fixture")
}
