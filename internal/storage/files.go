package storage

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// File tracks a scanned source file and its content fingerprint
type File struct {
	Path          string
	Fingerprint   string
	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Fingerprint computes the content fingerprint used for change detection
func Fingerprint(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileRepository provides CRUD operations for the files table
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

// Get retrieves a file record by path
func (r *FileRepository) Get(path string) (*File, error) {
	var f File
	var createdAt, updatedAt string

	err := r.db.QueryRow(`
		SELECT path, fingerprint, schema_version, created_at, updated_at
		FROM files
		WHERE path = ?
	`, path).Scan(&f.Path, &f.Fingerprint, &f.SchemaVersion, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}
	if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at format: %w", err)
	}

	return &f, nil
}

// UpsertTx creates or refreshes a file record within a transaction
func (r *FileRepository) UpsertTx(tx *sql.Tx, path, fingerprint string, schemaVersion int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := tx.Exec(`
		INSERT INTO files (path, fingerprint, schema_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at
	`, path, fingerprint, schemaVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// ListAll returns the paths of every tracked file
func (r *FileRepository) ListAll() ([]string, error) {
	rows, err := r.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return paths, nil
}

// Delete drops a file from the graph. Entities in the file, their metadata,
// and relations touching them cascade away with it.
func (r *FileRepository) Delete(path string) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM entities
			WHERE id IN (SELECT entity_id FROM metadata WHERE file_path = ?)
		`, path); err != nil {
			return fmt.Errorf("failed to delete file entities: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return nil
	})
}
