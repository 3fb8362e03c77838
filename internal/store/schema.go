package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// adapterVersion tracks the schema generation; a reopen against a lower
// stored version bumps db_version (the migration hook point).
const adapterVersion = 7

// Table names, quoted for embedding in SQL.
const (
	docStore       = "'document-store'"
	bySeqStore     = "'by-sequence'"
	attachStore    = "'attach-store'"
	localStore     = "'local-store'"
	metaStore      = "'metadata-store'"
	attachSeqStore = "'attach-seq-store'"
)

// The five indexes covering the common scan shapes.
var schemaIndexes = []string{
	"CREATE INDEX IF NOT EXISTS 'by-seq-deleted-idx' ON " + bySeqStore + " (seq, deleted)",
	"CREATE UNIQUE INDEX IF NOT EXISTS 'by-seq-doc-id-rev' ON " + bySeqStore + " (doc_id, rev)",
	"CREATE INDEX IF NOT EXISTS 'doc-winningseq-idx' ON " + docStore + " (winningseq)",
	"CREATE INDEX IF NOT EXISTS 'attach-seq-seq-idx' ON " + attachSeqStore + " (seq)",
	"CREATE UNIQUE INDEX IF NOT EXISTS 'attach-seq-digest-idx' ON " + attachSeqStore + " (digest, seq)",
}

var schemaTables = []string{
	"CREATE TABLE IF NOT EXISTS " + attachStore + " (digest UNIQUE, escaped TINYINT(1), body BLOB)",
	"CREATE TABLE IF NOT EXISTS " + localStore + " (id UNIQUE, rev, json)",
	"CREATE TABLE IF NOT EXISTS " + attachSeqStore + " (digest, seq INTEGER)",
	"CREATE TABLE IF NOT EXISTS " + docStore + " (id UNIQUE, json, winningseq, max_seq INTEGER UNIQUE)",
	"CREATE TABLE IF NOT EXISTS " + bySeqStore + " (seq INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, json, deleted TINYINT(1), doc_id, rev)",
	"CREATE TABLE IF NOT EXISTS " + metaStore + " (dbid, db_version INTEGER)",
}

// setupSchema bootstraps or migrates the schema inside tx and returns the
// database's instance id.
func setupSchema(tx *sql.Tx) (instanceID string, err error) {
	version, err := storedVersion(tx)
	if err != nil {
		return "", err
	}
	if version == 0 {
		return createInitialSchema(tx)
	}
	return migrate(tx, version)
}

// storedVersion reads the schema version, or 0 when the metadata table
// does not exist yet.
func storedVersion(tx *sql.Tx) (int, error) {
	var ddl string
	err := tx.QueryRow(
		"SELECT sql FROM sqlite_master WHERE type='table' AND name=?",
		strings.Trim(metaStore, "'"),
	).Scan(&ddl)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("probe schema: %w", err)
	}

	// Very old databases predate the db_version column.
	if !strings.Contains(ddl, "db_version") {
		if _, err := tx.Exec("ALTER TABLE " + metaStore + " ADD COLUMN db_version INTEGER"); err != nil {
			return 0, fmt.Errorf("add db_version column: %w", err)
		}
		return 1, nil
	}

	var version int
	if err := tx.QueryRow("SELECT db_version FROM " + metaStore).Scan(&version); err != nil {
		return 0, fmt.Errorf("read db_version: %w", err)
	}
	return version, nil
}

func createInitialSchema(tx *sql.Tx) (string, error) {
	for _, ddl := range schemaTables {
		if _, err := tx.Exec(ddl); err != nil {
			return "", fmt.Errorf("create table: %w", err)
		}
	}
	for _, ddl := range schemaIndexes {
		if _, err := tx.Exec(ddl); err != nil {
			return "", fmt.Errorf("create index: %w", err)
		}
	}

	instanceID := uuid.NewString()
	_, err := tx.Exec(
		"INSERT INTO "+metaStore+" (db_version, dbid) VALUES (?,?)",
		adapterVersion, instanceID,
	)
	if err != nil {
		return "", fmt.Errorf("write metadata row: %w", err)
	}
	return instanceID, nil
}

// migrate bumps db_version when the stored schema predates the current
// adapter version; no destructive migration is performed.
func migrate(tx *sql.Tx, version int) (string, error) {
	if version < adapterVersion {
		if _, err := tx.Exec("UPDATE "+metaStore+" SET db_version = ?", adapterVersion); err != nil {
			return "", fmt.Errorf("bump db_version: %w", err)
		}
	}
	var instanceID string
	if err := tx.QueryRow("SELECT dbid FROM " + metaStore).Scan(&instanceID); err != nil {
		return "", fmt.Errorf("read instance id: %w", err)
	}
	return instanceID, nil
}

// qMarks renders an n-wide SQL placeholder group: 3 -> "(?,?,?)".
func qMarks(n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	b.WriteByte(')')
	return b.String()
}
