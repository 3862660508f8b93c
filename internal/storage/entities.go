package storage

import (
	"database/sql"
	"fmt"
)

// Entity kinds
const (
	KindModule   = "module"
	KindClass    = "class"
	KindFunction = "function"
	KindMethod   = "method"
)

// Visibility values
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Entity represents a named code construct in the persisted graph
type Entity struct {
	ID         string
	Name       string
	Kind       string // module | class | function | method
	Visibility string // public | private
	ParentID   *string
	LineStart  *int
	LineEnd    *int
	SymbolHash *string
}

// Metadata is the one-to-one companion of an Entity
type Metadata struct {
	EntityID     string
	FilePath     string
	Docstring    string
	Signature    string
	SemanticType string  // Constructor | Method | Function | Class | Module | ...
	MethodKind   *string // static | class | instance
	TypeHint     *string // populated only by the semantic pass
}

// EntityRepository provides CRUD and range queries over entities and metadata
type EntityRepository struct {
	db *DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

const entityCols = `id, name, kind, visibility, parent_id, line_start, line_end, symbol_hash`

// CreateTx inserts an entity and its metadata within a transaction
func (r *EntityRepository) CreateTx(tx *sql.Tx, entity *Entity, meta *Metadata) error {
	_, err := tx.Exec(`
		INSERT INTO entities (id, name, kind, visibility, parent_id, line_start, line_end, symbol_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID,
		entity.Name,
		entity.Kind,
		entity.Visibility,
		entity.ParentID,
		entity.LineStart,
		entity.LineEnd,
		entity.SymbolHash,
	)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO metadata (entity_id, file_path, docstring, signature, semantic_type, method_kind, type_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		meta.EntityID,
		meta.FilePath,
		meta.Docstring,
		meta.Signature,
		meta.SemanticType,
		meta.MethodKind,
		meta.TypeHint,
	)
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	return nil
}

// GetByID retrieves an entity by its id
func (r *EntityRepository) GetByID(id string) (*Entity, error) {
	row := r.db.QueryRow("SELECT "+entityCols+" FROM entities WHERE id = ?", id)
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// GetMetadata retrieves the metadata companion of an entity
func (r *EntityRepository) GetMetadata(entityID string) (*Metadata, error) {
	var meta Metadata
	err := r.db.QueryRow(`
		SELECT entity_id, file_path, docstring, signature, semantic_type, method_kind, type_hint
		FROM metadata
		WHERE entity_id = ?
	`, entityID).Scan(
		&meta.EntityID,
		&meta.FilePath,
		&meta.Docstring,
		&meta.Signature,
		&meta.SemanticType,
		&meta.MethodKind,
		&meta.TypeHint,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	return &meta, nil
}

// ListByFile returns all entities recorded in a file, ordered by span start
func (r *EntityRepository) ListByFile(filePath string) ([]*Entity, error) {
	rows, err := r.db.Query(`
		SELECT e.id, e.name, e.kind, e.visibility, e.parent_id, e.line_start, e.line_end, e.symbol_hash
		FROM entities e
		JOIN metadata m ON e.id = m.entity_id
		WHERE m.file_path = ?
		ORDER BY e.line_start
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by file: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// ListOverlappingLine returns entities in a file whose span contains the
// given 0-based line, smallest span first
func (r *EntityRepository) ListOverlappingLine(filePath string, line int) ([]*Entity, error) {
	rows, err := r.db.Query(`
		SELECT e.id, e.name, e.kind, e.visibility, e.parent_id, e.line_start, e.line_end, e.symbol_hash
		FROM entities e
		JOIN metadata m ON e.id = m.entity_id
		WHERE m.file_path = ?
		  AND e.line_start IS NOT NULL
		  AND e.line_start <= ?
		  AND e.line_end >= ?
		ORDER BY (e.line_end - e.line_start) ASC, e.line_start DESC
	`, filePath, line, line)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by location: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// NamedEntity pairs an entity with the file that declares it
type NamedEntity struct {
	*Entity
	FilePath string
}

// ListByName returns all entities with an exact name match, with their
// declaring files. Used by the lazy linker.
func (r *EntityRepository) ListByName(name string) ([]*NamedEntity, error) {
	rows, err := r.db.Query(`
		SELECT e.id, e.name, e.kind, e.visibility, e.parent_id, e.line_start, e.line_end, e.symbol_hash, m.file_path
		FROM entities e
		JOIN metadata m ON e.id = m.entity_id
		WHERE e.name = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by name: %w", err)
	}
	defer rows.Close()

	var results []*NamedEntity
	for rows.Next() {
		var entity Entity
		var filePath string
		if err := rows.Scan(
			&entity.ID,
			&entity.Name,
			&entity.Kind,
			&entity.Visibility,
			&entity.ParentID,
			&entity.LineStart,
			&entity.LineEnd,
			&entity.SymbolHash,
			&filePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		results = append(results, &NamedEntity{Entity: &entity, FilePath: filePath})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return results, nil
}

// UpdateSymbolHash sets the derived symbol hash for an entity
func (r *EntityRepository) UpdateSymbolHash(entityID, hash string) error {
	_, err := r.db.Exec("UPDATE entities SET symbol_hash = ? WHERE id = ?", hash, entityID)
	if err != nil {
		return fmt.Errorf("failed to update symbol hash: %w", err)
	}
	return nil
}

// UpdateTypeHint sets the semantic-pass type hint on an entity's metadata
func (r *EntityRepository) UpdateTypeHint(entityID, typeHint string) error {
	_, err := r.db.Exec("UPDATE metadata SET type_hint = ? WHERE entity_id = ?", typeHint, entityID)
	if err != nil {
		return fmt.Errorf("failed to update type hint: %w", err)
	}
	return nil
}

// DeleteByFileTx removes all entities recorded in a file within a
// transaction. Metadata and relations referencing them go with them.
func (r *EntityRepository) DeleteByFileTx(tx *sql.Tx, filePath string) error {
	_, err := tx.Exec(`
		DELETE FROM entities
		WHERE id IN (SELECT entity_id FROM metadata WHERE file_path = ?)
	`, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete entities for file: %w", err)
	}
	return nil
}

// QualifiedName returns the dotted name of an entity from the module root,
// e.g. "MyClass.my_method".
func (r *EntityRepository) QualifiedName(entityID string) (string, error) {
	name := ""
	id := entityID
	// Walk the parent chain; the schema guarantees it is acyclic
	for i := 0; i < 64; i++ {
		entity, err := r.GetByID(id)
		if err != nil {
			return "", err
		}
		if entity == nil {
			break
		}
		if entity.Kind == KindModule {
			break
		}
		if name == "" {
			name = entity.Name
		} else {
			name = entity.Name + "." + name
		}
		if entity.ParentID == nil {
			break
		}
		id = *entity.ParentID
	}
	return name, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	var entity Entity
	err := row.Scan(
		&entity.ID,
		&entity.Name,
		&entity.Kind,
		&entity.Visibility,
		&entity.ParentID,
		&entity.LineStart,
		&entity.LineEnd,
		&entity.SymbolHash,
	)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func scanEntities(rows *sql.Rows) ([]*Entity, error) {
	var entities []*Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}
