package builder

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/embedding"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/model"
	"github.com/CoReason-AI/codex-engine/internal/vecstore"
)

// defaultBatchSize is the number of concept rows embedded per call to
// embed_batch, per spec.md §4.7 stage 3.
const defaultBatchSize = 10000

// buildVectors streams every named concept out of the just-built
// relational store, embeds each batch, and writes the resulting vectors
// into a fresh "vectors" table inside outputDir/vecstoreDir/IndexFilename,
// overwriting any prior table of that name.
func buildVectors(relPath, outputDir, vecstoreDir string, embedder embedding.Embedder, batchSize int) (err error) {
	log := logging.Get(logging.CategoryBuilder)

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	srcDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", relPath))
	if err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:open-source", err)
	}
	defer srcDB.Close()

	vecDirPath := filepath.Join(outputDir, vecstoreDir)
	if err := os.MkdirAll(vecDirPath, 0o755); err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:mkdir", err)
	}
	dbPath := filepath.Join(vecDirPath, vecstore.IndexFilename)

	dstDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:open-dest", err)
	}
	defer func() {
		dstDB.Close()
		if err != nil {
			os.RemoveAll(vecDirPath)
		}
	}()

	if _, execErr := dstDB.Exec(`DROP TABLE IF EXISTS vectors`); execErr != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:drop", execErr)
	}
	if _, execErr := dstDB.Exec(`CREATE TABLE vectors (concept_id INTEGER, domain_id TEXT, embedding BLOB)`); execErr != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:create", execErr)
	}

	rows, err := srcDB.Query(`SELECT concept_id, concept_name, domain_id FROM CONCEPT WHERE concept_name IS NOT NULL AND concept_name <> ''`)
	if err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:select", err)
	}
	defer rows.Close()

	ctx := context.Background()

	// domainOf tracks the domain_id alongside each batch's VectorRecords,
	// since VectorRecord itself (per spec.md §3) carries only vector,
	// concept_id, and concept_name — domain_id is store-local plumbing for
	// the Normalizer's prefilter, not part of the record's own shape.
	batch := make([]model.VectorRecord, 0, batchSize)
	domainOf := make(map[int64]string, batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		names := make([]string, len(batch))
		for i, r := range batch {
			names[i] = r.ConceptName
		}
		vectors, embedErr := embedder.EmbedBatch(ctx, names)
		if embedErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "vectors:embed", embedErr)
		}
		if len(vectors) != len(names) {
			return codexerr.New(codexerr.EmbedderShape, fmt.Sprintf("expected %d vectors, got %d", len(names), len(vectors)))
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}

		tx, txErr := dstDB.Begin()
		if txErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "vectors:tx", txErr)
		}
		stmt, prepErr := tx.Prepare(`INSERT INTO vectors (concept_id, domain_id, embedding) VALUES (?, ?, ?)`)
		if prepErr != nil {
			tx.Rollback()
			return codexerr.Wrap(codexerr.BuildFailed, "vectors:prepare", prepErr)
		}
		for _, r := range batch {
			if _, execErr := stmt.Exec(r.ConceptID, domainOf[r.ConceptID], encodeFloat32(r.Vector)); execErr != nil {
				stmt.Close()
				tx.Rollback()
				return codexerr.Wrap(codexerr.BuildFailed, "vectors:insert", execErr)
			}
		}
		stmt.Close()
		if commitErr := tx.Commit(); commitErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "vectors:commit", commitErr)
		}
		total += len(batch)
		log.Info("embedded batch", zap.Int("batch_size", len(batch)), zap.Int("total", total))
		batch = batch[:0]
		for k := range domainOf {
			delete(domainOf, k)
		}
		return nil
	}

	for rows.Next() {
		var r model.VectorRecord
		var domainID string
		if scanErr := rows.Scan(&r.ConceptID, &r.ConceptName, &domainID); scanErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "vectors:scan", scanErr)
		}
		domainOf[r.ConceptID] = domainID
		batch = append(batch, r)
		if len(batch) >= batchSize {
			if flushErr := flush(); flushErr != nil {
				return flushErr
			}
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "vectors:rows", rowsErr)
	}
	if flushErr := flush(); flushErr != nil {
		return flushErr
	}

	log.Info("vector store built", zap.Int("concepts", total))
	return nil
}

func encodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
