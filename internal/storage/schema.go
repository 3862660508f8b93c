package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
// SchemaVersion is the current storage schema version, recorded per file
// so stale rows are detectable after upgrades.
const SchemaVersion = 1

const currentSchemaVersion = SchemaVersion

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createFilesTable(tx); err != nil {
			return err
		}
		if err := createEntitiesTable(tx); err != nil {
			return err
		}
		if err := createMetadataTable(tx); err != nil {
			return err
		}
		if err := createRelationsTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}
	if version == 0 {
		// Database file exists but carries no schema yet
		return db.initializeSchema()
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Migration functions are added here as the schema evolves
	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createFilesTable creates the files table. The fingerprint gates
// re-extraction on rescan; semantic re-resolution ignores it.
func createFilesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}
	return nil
}

// createEntitiesTable creates the entities table. The parent relation forms
// a tree rooted at a module entity per file.
func createEntitiesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('module', 'class', 'function', 'method')),
			visibility TEXT NOT NULL CHECK(visibility IN ('public', 'private')),
			parent_id TEXT,
			line_start INTEGER,
			line_end INTEGER,
			symbol_hash TEXT,

			FOREIGN KEY (parent_id) REFERENCES entities(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name)",
		"CREATE INDEX IF NOT EXISTS idx_entities_parent_id ON entities(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_entities_symbol_hash ON entities(symbol_hash)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createMetadataTable creates the metadata table, a one-to-one companion of
// entities. Deleting an entity removes its metadata.
func createMetadataTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			entity_id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			docstring TEXT,
			signature TEXT,
			semantic_type TEXT,
			method_kind TEXT CHECK(method_kind IN ('static', 'class', 'instance') OR method_kind IS NULL),
			type_hint TEXT,

			FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY (file_path) REFERENCES files(path) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_metadata_file_path ON metadata(file_path)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// createRelationsTable creates the relations table. The unique key on
// (from_id, to_name, rel_type) is what makes re-resolution an upsert rather
// than a duplicate insert, and the CHECK enforces that a verified link
// always has a concrete target.
func createRelationsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id TEXT NOT NULL,
			to_id TEXT,
			to_name TEXT NOT NULL,
			rel_type TEXT NOT NULL CHECK(rel_type IN ('calls', 'inherits', 'imports', 'depends_on')),
			is_verified INTEGER NOT NULL DEFAULT 0 CHECK(is_verified IN (0, 1)),
			line INTEGER,
			character INTEGER,

			UNIQUE(from_id, to_name, rel_type),
			CHECK(is_verified = 0 OR to_id IS NOT NULL),
			FOREIGN KEY (from_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY (to_id) REFERENCES entities(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create relations table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_relations_to_id ON relations(to_id)",
		"CREATE INDEX IF NOT EXISTS idx_relations_to_name ON relations(to_name)",
		"CREATE INDEX IF NOT EXISTS idx_relations_is_verified ON relations(is_verified)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
