// Package builder implements the offline Builder: CSV ingest into the
// relational store, streamed embedding into the vector store, and
// manifest emission, per spec.md §4.7. It is never run concurrently with
// the query path and never shares handles with it.
package builder

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/embedding"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/manifest"
	"github.com/CoReason-AI/codex-engine/internal/runtime"
)

// Options configures a Build run.
type Options struct {
	SourceDir  string // directory containing CONCEPT.csv etc.
	OutputDir  string // pack directory to produce
	Version    string
	SourceDate string
	BatchSize  int // embed_batch chunk size; 0 uses the default
}

// Build runs the full builder pipeline: verify source, build the
// relational store, build the vector store, then emit manifest.json.
// Stages run sequentially, single-threaded per stage.
func Build(opts Options, embedder embedding.Embedder) error {
	// runID correlates this build's log lines across the sequential stages;
	// it is not persisted anywhere in the pack itself.
	runID := uuid.New().String()
	log := logging.Get(logging.CategoryBuilder).With(zap.String("run_id", runID))

	log.Info("build starting", zap.String("source_dir", opts.SourceDir), zap.String("output_dir", opts.OutputDir))

	if err := verifySource(opts.SourceDir); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "output dir", err)
	}

	if err := buildRelational(opts.SourceDir, opts.OutputDir, runtime.RelstoreFilename); err != nil {
		return err
	}

	relPath := filepath.Join(opts.OutputDir, runtime.RelstoreFilename)
	if err := buildVectors(relPath, opts.OutputDir, runtime.VecstoreDir, embedder, opts.BatchSize); err != nil {
		return err
	}

	if err := emitManifest(opts); err != nil {
		return err
	}

	log.Info("build complete", zap.String("output_dir", opts.OutputDir), zap.String("version", opts.Version))
	return nil
}

// emitManifest computes the checksum of every artifact that exists in
// opts.OutputDir (file hash for the relational store, canonical
// directory hash for the vector store) and writes manifest.json.
func emitManifest(opts Options) error {
	checksums := map[string]string{}

	relPath := filepath.Join(opts.OutputDir, runtime.RelstoreFilename)
	if _, err := os.Stat(relPath); err == nil {
		hash, hashErr := manifest.HashFile(relPath)
		if hashErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "manifest:hash-relstore", hashErr)
		}
		checksums[runtime.RelstoreFilename] = hash
	}

	vecPath := filepath.Join(opts.OutputDir, runtime.VecstoreDir)
	if _, err := os.Stat(vecPath); err == nil {
		hash, hashErr := manifest.HashDir(vecPath)
		if hashErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "manifest:hash-vecstore", hashErr)
		}
		checksums[runtime.VecstoreDir] = hash
	}

	doc := manifest.Manifest{
		Version:    opts.Version,
		SourceDate: opts.SourceDate,
		Checksums:  checksums,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "manifest:marshal", err)
	}

	manifestPath := filepath.Join(opts.OutputDir, manifest.Filename)
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "manifest:write", err)
	}
	return nil
}
