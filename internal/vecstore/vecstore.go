// Package vecstore is the vector half of the Artifact Stores component: a
// local, on-disk nearest-neighbor index over concept-name embeddings.
//
// The store is cgo-free: it queries a plain "vectors" table through a
// vector_distance_cos scalar function registered against
// modernc.org/sqlite (see vec_compat.go), adapted from the teacher's
// compatibility shim.
package vecstore

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/logging"
)

// dbFilename is the on-disk SQLite file inside the vector store directory
// that actually holds the "vectors" table. Keeping it inside a directory (not a
// bare file) is what lets the vector store qualify as a "directory
// artifact" for manifest hashing, matching the pack layout in spec.md §6.
const dbFilename = "index.db"

// IndexFilename is the on-disk SQLite file name inside a vector store
// directory, exported so the Builder writes to the same path this
// package reads from.
const IndexFilename = dbFilename

// Store is a read-only handle over a vector store directory.
type Store struct {
	db  *sql.DB
	dim int
}

// Candidate is one nearest-neighbor hit.
type Candidate struct {
	ConceptID int64
	Distance  float64 // cosine distance in [0,2]
}

// Prefilter restricts a nearest() query to rows whose stored field equals
// value. Field is whitelisted to "domain_id" by the Normalizer before it
// ever reaches here — see spec.md §9's injection-surface note.
type Prefilter struct {
	Field string
	Value string
}

// Open opens the vector store directory at path. dim is the embedding
// dimension the pack was built with; nearest() validates query vectors
// against it.
func Open(path string, dim int) (*Store, error) {
	log := logging.Get(logging.CategoryVector)

	dbPath := filepath.Join(path, dbFilename)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, codexerr.Wrap(codexerr.StoreOpenFailed, dbPath, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, codexerr.Wrap(codexerr.StoreOpenFailed, dbPath, err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.Exec("SELECT 1 FROM vectors LIMIT 1"); err != nil {
		db.Close()
		return nil, codexerr.Wrap(codexerr.StoreOpenFailed, "vectors", err)
	}

	log.Info("vector store opened")
	return &Store{db: db, dim: dim}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dimensions reports the embedding dimension this store was opened with.
func (s *Store) Dimensions() int {
	return s.dim
}

// Nearest returns the k nearest stored rows to vector as Candidates, by cosine
// distance, ascending (closest first), optionally pushed down through a
// prefilter on a stored scalar column.
func (s *Store) Nearest(vector []float32, k int, prefilter *Prefilter) ([]Candidate, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("vecstore: query dimension %d != index dimension %d", len(vector), s.dim)
	}

	blob := encodeFloat32(vector)

	query := "SELECT concept_id, vector_distance_cos(embedding, ?) AS dist FROM vectors"
	args := []interface{}{blob}
	if prefilter != nil {
		query += fmt.Sprintf(" WHERE %s = ?", quoteIdent(prefilter.Field))
		args = append(args, prefilter.Value)
	}
	query += " ORDER BY dist ASC LIMIT ?"
	args = append(args, k)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ConceptID, &c.Distance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Similarity maps a cosine distance in [0,2] into a monotonic similarity
// in [0,1], per spec.md §4.2 and Open Question 3.
func Similarity(distance float64) float64 {
	sim := 1.0 - distance
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// quoteIdent is a defense-in-depth double-quote wrap for the already
// whitelist-validated prefilter field name; the Normalizer never passes
// anything here but "domain_id".
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

func encodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
