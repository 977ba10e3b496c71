package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
)

func writeManifest(t *testing.T, dir string, m *Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), data, 0o644))
}

func hashBytes(t *testing.T, b []byte) string {
	t.Helper()
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Equal(t, codexerr.ManifestMissing, codexerr.KindOf(err))
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte("{not json"), 0o644))
	_, err := Load(dir)
	require.Equal(t, codexerr.ManifestMalformed, codexerr.KindOf(err))
}

func TestLoad_SchemaInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(`{"version":"v1"}`), 0o644))
	_, err := Load(dir)
	require.Equal(t, codexerr.ManifestSchemaInvalid, codexerr.KindOf(err))
}

func TestVerifyIntegrity_Success(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello vocabulary")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.sqlite"), content, 0o644))

	m := &Manifest{
		Version:    "v1",
		SourceDate: "2026-01-01",
		Checksums:  map[string]string{"vocab.sqlite": hashBytes(t, content)},
	}

	require.NoError(t, VerifyIntegrity(dir, m))
}

func TestVerifyIntegrity_Mismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.sqlite"), []byte("hello"), 0o644))

	m := &Manifest{Checksums: map[string]string{"vocab.sqlite": hashBytes(t, []byte("goodbye"))}}
	err := VerifyIntegrity(dir, m)
	require.Equal(t, codexerr.IntegrityMismatch, codexerr.KindOf(err))
}

func TestVerifyIntegrity_Appending1ByteBreaksHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.sqlite")
	content := []byte("stable content")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m := &Manifest{Checksums: map[string]string{"vocab.sqlite": hashBytes(t, content)}}
	require.NoError(t, VerifyIntegrity(dir, m))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("X"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = VerifyIntegrity(dir, m)
	require.Equal(t, codexerr.IntegrityMismatch, codexerr.KindOf(err))
}

func TestVerifyIntegrity_PathTraversalRejectedBeforeHashing(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Checksums: map[string]string{"../outside": "deadbeef"}}
	err := VerifyIntegrity(dir, m)
	require.Equal(t, codexerr.SecurityViolation, codexerr.KindOf(err))

	var e *codexerr.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, codexerr.PathTraversal, e.Reason)
}

func TestVerifyIntegrity_SymlinkRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.sqlite")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "vocab.sqlite")
	require.NoError(t, os.Symlink(target, link))

	m := &Manifest{Checksums: map[string]string{"vocab.sqlite": hashBytes(t, []byte("x"))}}
	err := VerifyIntegrity(dir, m)
	require.Equal(t, codexerr.SecurityViolation, codexerr.KindOf(err))

	var e *codexerr.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, codexerr.Symlink, e.Reason)
}

func TestVerifyIntegrity_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Checksums: map[string]string{"vocab.sqlite": "deadbeef"}}
	err := VerifyIntegrity(dir, m)
	require.Equal(t, codexerr.ArtifactMissing, codexerr.KindOf(err))
}

func TestVerifyIntegrity_DirectoryHashIsOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	vecDir := filepath.Join(dir, "vectors.vecdir")
	require.NoError(t, os.MkdirAll(filepath.Join(vecDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vecDir, "a.bin"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vecDir, "sub", "b.bin"), []byte("bbb"), 0o644))

	hash1, err := HashDir(vecDir)
	require.NoError(t, err)

	// Recomputing must be stable regardless of how the OS happens to
	// enumerate entries.
	hash2, err := HashDir(vecDir)
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)
}

func TestVerifyIntegrity_DirectoryHashChangesOnAddedFile(t *testing.T) {
	dir := t.TempDir()
	vecDir := filepath.Join(dir, "vectors.vecdir")
	require.NoError(t, os.MkdirAll(vecDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vecDir, "a.bin"), []byte("aaa"), 0o644))

	before, err := HashDir(vecDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(vecDir, "b.bin"), []byte("bbb"), 0o644))
	after, err := HashDir(vecDir)
	require.NoError(t, err)

	require.NotEqual(t, before, after)
}
