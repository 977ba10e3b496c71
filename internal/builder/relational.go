package builder

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/logging"
)

// requiredSourceFiles are the three CSVs the Builder requires in
// sourceDir, per spec.md §4.7 stage 1.
var requiredSourceFiles = []string{"CONCEPT.csv", "CONCEPT_RELATIONSHIP.csv", "CONCEPT_ANCESTOR.csv"}

// relationalIndexes names the five indexes spec.md §4.7 stage 2 requires.
var relationalIndexes = []struct {
	name, table, column string
}{
	{"idx_concept_id", "CONCEPT", "concept_id"},
	{"idx_ancestor_id", "CONCEPT_ANCESTOR", "ancestor_concept_id"},
	{"idx_descendant_id", "CONCEPT_ANCESTOR", "descendant_concept_id"},
	{"idx_cr_concept_1", "CONCEPT_RELATIONSHIP", "concept_id_1"},
	{"idx_cr_concept_2", "CONCEPT_RELATIONSHIP", "concept_id_2"},
}

// verifySource requires the three source CSVs to exist in sourceDir.
func verifySource(sourceDir string) error {
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return codexerr.Wrap(codexerr.SourceMissing, sourceDir, err)
	}
	for _, name := range requiredSourceFiles {
		path := filepath.Join(sourceDir, name)
		if _, err := os.Stat(path); err != nil {
			return codexerr.Wrap(codexerr.SourceMissing, path, err)
		}
	}
	return nil
}

// buildRelational ingests the three source CSVs into a fresh SQLite file
// at outputDir/RelstoreFilename, auto-inferring a table schema from each
// header and loading every row, then creating the five lookup indexes.
// Any prior file at that path is deleted first; on any failure the
// partial file is removed before returning — the directory must never
// hold a half-built store.
func buildRelational(sourceDir, outputDir, relstoreFilename string) (err error) {
	log := logging.Get(logging.CategoryBuilder)

	dbPath := filepath.Join(outputDir, relstoreFilename)
	os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return codexerr.Wrap(codexerr.BuildFailed, "relational:open", err)
	}

	defer func() {
		db.Close()
		if err != nil {
			os.Remove(dbPath)
		}
	}()

	for _, table := range []string{"CONCEPT", "CONCEPT_RELATIONSHIP", "CONCEPT_ANCESTOR"} {
		csvPath := filepath.Join(sourceDir, table+".csv")
		if loadErr := loadTable(db, table, csvPath); loadErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "relational:"+table, loadErr)
		}
		log.Info("loaded table", zap.String("table", table))
	}

	for _, idx := range relationalIndexes {
		stmt := fmt.Sprintf(`CREATE INDEX %s ON %s(%s)`, idx.name, idx.table, idx.column)
		if _, idxErr := db.Exec(stmt); idxErr != nil {
			return codexerr.Wrap(codexerr.BuildFailed, "relational:index:"+idx.name, idxErr)
		}
	}
	log.Info("relational store built", zap.String("path", dbPath))
	return nil
}

// loadTable creates table with columns inferred from the CSV header
// (all TEXT — SQLite's dynamic typing makes this a safe default; the
// numeric columns the query layer cares about, like concept_id, stay
// comparable and indexable because SQLite applies the column's TEXT
// affinity to integer query parameters before comparing) and bulk
// loads every data row inside a single transaction.
func loadTable(db *sql.DB, table, csvPath string) error {
	f, r, err := openCSV(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(strings.TrimSpace(h)) + " TEXT"
	}

	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
	if _, err := db.Exec(createStmt); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(placeholders, ","))

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare(insertStmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for {
		row, readErr := r.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tx.Rollback()
			return fmt.Errorf("read row: %w", readErr)
		}
		args := make([]interface{}, len(row))
		for i, v := range row {
			// OMOP exports use the empty field for "no value" (e.g. an
			// active row's invalid_reason); the query layer gates on
			// IS NULL, so empty strings must bind as SQL NULL, not ''.
			if v == "" {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row: %w", err)
		}
	}

	return tx.Commit()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
