package runtime_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/CoReason-AI/codex-engine/internal/builder"
	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/runtime"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

const testDims = 4

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (fixedEmbedder) Dimensions() int { return testDims }
func (fixedEmbedder) Name() string    { return "fixed" }

// vectorFor derives a deterministic vector from a string's length,
// good enough for nearest-neighbor plumbing tests.
func vectorFor(s string) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = float32((len(s) + i) % 97)
	}
	return v
}

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func buildTestPack(t *testing.T) string {
	t.Helper()
	sourceDir := t.TempDir()
	writeCSV(t, sourceDir, "CONCEPT.csv", "concept_id,concept_name,domain_id,vocabulary_id,concept_class_id,standard_concept,concept_code,invalid_reason\n"+
		"312327,Acute myocardial infarction,Condition,SNOMED,Clinical Finding,S,22298006,\n")
	writeCSV(t, sourceDir, "CONCEPT_RELATIONSHIP.csv", "concept_id_1,concept_id_2,relationship_id,invalid_reason\n")
	writeCSV(t, sourceDir, "CONCEPT_ANCESTOR.csv", "ancestor_concept_id,descendant_concept_id,min_levels_of_separation,max_levels_of_separation\n"+
		"312327,312327,0,0\n")

	outputDir := t.TempDir()
	err := builder.Build(builder.Options{
		SourceDir:  sourceDir,
		OutputDir:  outputDir,
		Version:    "v-test",
		SourceDate: "2026-01-01",
	}, fixedEmbedder{})
	require.NoError(t, err)
	return outputDir
}

func TestInitialize_ThenGet(t *testing.T) {
	packDir := buildTestPack(t)

	require.NoError(t, runtime.Initialize(packDir, fixedEmbedder{}))

	ctx, err := runtime.Get()
	require.NoError(t, err)
	require.Equal(t, "v-test", ctx.Manifest.Version)
	require.NotNil(t, ctx.Normalizer)
	require.NotNil(t, ctx.Hierarchy)
	require.NotNil(t, ctx.CrossWalker)
}

func TestInitialize_FailingReinitLeavesPriorContextIntact(t *testing.T) {
	packDir := buildTestPack(t)
	require.NoError(t, runtime.Initialize(packDir, fixedEmbedder{}))

	before, err := runtime.Get()
	require.NoError(t, err)

	badDir := t.TempDir() // no manifest.json here
	err = runtime.Initialize(badDir, fixedEmbedder{})
	require.Error(t, err)
	require.Equal(t, codexerr.ManifestMissing, codexerr.KindOf(err))

	after, err := runtime.Get()
	require.NoError(t, err)
	require.Same(t, before, after, "a failing initialize must not change what Get returns")
}
