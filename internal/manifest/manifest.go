// Package manifest implements the Manifest & Integrity Gate: parsing a
// Codex Pack's manifest.json and verifying every artifact it references
// before any store is opened, per spec.md §4.1.
package manifest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/logging"
)

// Filename is the manifest's fixed name within a pack directory.
const Filename = "manifest.json"

// Manifest mirrors internal/model.Manifest but is the wire schema read
// straight off disk; callers normally deal with model.Manifest instead.
type Manifest struct {
	Version    string            `json:"version"`
	SourceDate string            `json:"source_date"`
	Checksums  map[string]string `json:"checksums"`
}

// Load reads and parses manifest.json from packDir.
func Load(packDir string) (*Manifest, error) {
	path := filepath.Join(packDir, Filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, codexerr.Wrap(codexerr.ManifestMissing, path, err)
		}
		return nil, codexerr.Wrap(codexerr.ManifestMalformed, path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, codexerr.Wrap(codexerr.ManifestMalformed, path, err)
	}

	if m.Version == "" || m.SourceDate == "" || m.Checksums == nil {
		return nil, codexerr.New(codexerr.ManifestSchemaInvalid, path)
	}

	return &m, nil
}

// VerifyIntegrity checks every (path, expected_hex) pair in m.Checksums
// against packDir, per the five-step contract in spec.md §4.1. It aborts
// on the first failure.
func VerifyIntegrity(packDir string, m *Manifest) error {
	log := logging.Get(logging.CategoryManifest)

	absRoot, err := filepath.Abs(packDir)
	if err != nil {
		return codexerr.Wrap(codexerr.StoreOpenFailed, packDir, err)
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return codexerr.Wrap(codexerr.StoreOpenFailed, packDir, err)
	}

	// Deterministic iteration order for reproducible error reporting.
	paths := make([]string, 0, len(m.Checksums))
	for p := range m.Checksums {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// Reject unsafe entries before any artifact is hashed.
	for _, rel := range paths {
		cleanResolved := filepath.Clean(filepath.Join(absRoot, rel))
		if !isDescendant(absRoot, cleanResolved) {
			log.Warn("path traversal rejected", zap.String("path", rel))
			return codexerr.Security(codexerr.PathTraversal, rel)
		}
		if info, err := os.Lstat(cleanResolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
			log.Warn("symlink rejected", zap.String("path", rel))
			return codexerr.Security(codexerr.Symlink, rel)
		}
	}

	for _, rel := range paths {
		expected := m.Checksums[rel]

		resolved := filepath.Join(absRoot, rel)
		cleanResolved := filepath.Clean(resolved)
		if !isDescendant(absRoot, cleanResolved) {
			log.Warn("path traversal rejected", zap.String("path", rel))
			return codexerr.Security(codexerr.PathTraversal, rel)
		}

		info, lstatErr := os.Lstat(cleanResolved)
		if lstatErr == nil && info.Mode()&os.ModeSymlink != 0 {
			log.Warn("symlink rejected", zap.String("path", rel))
			return codexerr.Security(codexerr.Symlink, rel)
		}

		if lstatErr != nil {
			if os.IsNotExist(lstatErr) {
				return codexerr.Wrap(codexerr.ArtifactMissing, rel, lstatErr)
			}
			return codexerr.Wrap(codexerr.ArtifactMissing, rel, lstatErr)
		}

		actual, err := computeHash(cleanResolved, info)
		if err != nil {
			return codexerr.Wrap(codexerr.ArtifactMissing, rel, err)
		}

		if subtle.ConstantTimeCompare([]byte(strings.ToLower(actual)), []byte(strings.ToLower(expected))) != 1 {
			log.Warn("checksum mismatch", zap.String("path", rel))
			return codexerr.New(codexerr.IntegrityMismatch, rel)
		}
	}

	log.Info("integrity verified", zap.String("version", m.Version))
	return nil
}

// HashFile computes the streamed SHA-256 of a regular file. Exported for
// the Builder, which computes the same checksums it later verifies.
func HashFile(path string) (string, error) {
	return hashFile(path)
}

// HashDir computes the canonical directory hash described in VerifyIntegrity
// step 4. Exported for the Builder.
func HashDir(path string) (string, error) {
	return hashDir(path)
}

// isDescendant reports whether target is root or lies strictly beneath it.
func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// computeHash dispatches to a streamed file hash or the canonical
// directory hash, per spec.md §4.1 step 4.
func computeHash(path string, info os.FileInfo) (string, error) {
	if info.IsDir() {
		return hashDir(path)
	}
	return hashFile(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashDir implements the canonical directory hash: enumerate regular
// files beneath dir, sort by relative path, fold update(relpath);
// update(filehex) per entry into a single SHA-256.
func hashDir(dir string) (string, error) {
	type entry struct {
		rel  string
		full string
	}
	var entries []entry

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), full: p})
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := sha256.New()
	for _, e := range entries {
		fileHex, err := hashFile(e.full)
		if err != nil {
			return "", err
		}
		h.Write([]byte(e.rel))
		h.Write([]byte(fileHex))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
