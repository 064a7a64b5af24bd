package models

import (
	"database/sql"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Package-level database handle. The in-memory Tree is the hot read path;
// DuckDB is the durable side: node cache, sync manifest, quarantine list
// and page revisions all live here so a restart never depends on the
// remote store being reachable.
var (
	db   *sql.DB
	dbMu sync.Mutex // serializes multi-statement writes
)

// InitDB opens the durable local database and runs migrations.
func InitDB(path string) error {
	var err error

	db, err = sql.Open("duckdb", path)
	if err != nil {
		return serr.Wrap(err, "failed to open local database")
	}

	if err = migrateDB(db); err != nil {
		return serr.Wrap(err, "failed to migrate local database")
	}

	logger.Info("Local database ready", "path", path)
	return nil
}

// InitTestDB opens a database at the given path for tests.
// Identical to InitDB; the separate name keeps test call sites honest
// about which database they are touching.
func InitTestDB(path string) error {
	return InitDB(path)
}

// CloseDB closes the database connection.
func CloseDB() {
	if db != nil {
		db.Close()
		db = nil
	}
}

// migrateDB creates all tables and sequences used by the engine.
func migrateDB(db *sql.DB) error {
	stmts := []string{
		DDLCreateRevisionsSequence,
		DDLCreateNodesTable,
		DDLCreateTrashQueueTable,
		DDLCreateManifestMetaTable,
		DDLCreateManifestEntriesTable,
		DDLCreateQuarantineTable,
		DDLCreateRevisionsTable,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return serr.Wrap(err, "migration statement failed")
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_local_id)",
		"CREATE INDEX IF NOT EXISTS idx_revisions_page ON page_revisions(page_local_id)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.LogErr(err, "failed to create index", "sql", idx)
		}
	}

	return nil
}
