package storage

import (
	"database/sql"
	"fmt"
)

// Relation types
const (
	RelCalls     = "calls"
	RelInherits  = "inherits"
	RelImports   = "imports"
	RelDependsOn = "depends_on"
)

// Relation is a directed, typed edge between an entity and either another
// entity or a still-unresolved name.
type Relation struct {
	ID         int64
	FromID     string
	ToID       *string // nil means unresolved
	ToName     string  // raw textual reference, always present
	RelType    string  // calls | inherits | imports | depends_on
	IsVerified bool
	Line       *int // call-site coordinates, 0-based, when known
	Character  *int
}

// ResolvedRelation joins a relation with its resolved target for display
type ResolvedRelation struct {
	Relation
	FromName         string
	FromFile         string
	TargetName       *string
	TargetKind       *string
	TargetFile       *string
	TargetType       *string // semantic type of the target
	TargetVisibility *string
}

// RelationRepository provides upsert-keyed operations over relations
type RelationRepository struct {
	db *DB
}

// NewRelationRepository creates a new relation repository
func NewRelationRepository(db *DB) *RelationRepository {
	return &RelationRepository{db: db}
}

const relationCols = `id, from_id, to_id, to_name, rel_type, is_verified, line, character`

// UpsertUnresolved records a raw relation from the syntax pass. The unique
// key (from_id, to_name, rel_type) makes a rescan refresh the call-site
// coordinates without touching a resolution already in place.
func (r *RelationRepository) UpsertUnresolved(rel *Relation) error {
	return r.upsertUnresolvedExec(r.db.Exec, rel)
}

// UpsertUnresolvedTx is UpsertUnresolved within a transaction
func (r *RelationRepository) UpsertUnresolvedTx(tx *sql.Tx, rel *Relation) error {
	return r.upsertUnresolvedExec(tx.Exec, rel)
}

func (r *RelationRepository) upsertUnresolvedExec(exec func(string, ...interface{}) (sql.Result, error), rel *Relation) error {
	_, err := exec(`
		INSERT INTO relations (from_id, to_id, to_name, rel_type, is_verified, line, character)
		VALUES (?, NULL, ?, ?, 0, ?, ?)
		ON CONFLICT(from_id, to_name, rel_type) DO UPDATE SET
			line = excluded.line,
			character = excluded.character
	`,
		rel.FromID,
		rel.ToName,
		rel.RelType,
		rel.Line,
		rel.Character,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relation: %w", err)
	}
	return nil
}

// Verify upgrades a relation to a verified link with a concrete target.
// Each call is an independent, durable upsert; cancellation never rolls
// one back.
func (r *RelationRepository) Verify(fromID, toName, relType, toID string) error {
	_, err := r.db.Exec(`
		INSERT INTO relations (from_id, to_id, to_name, rel_type, is_verified)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(from_id, to_name, rel_type) DO UPDATE SET
			to_id = excluded.to_id,
			is_verified = 1
	`, fromID, toID, toName, relType)
	if err != nil {
		return fmt.Errorf("failed to verify relation: %w", err)
	}
	return nil
}

// ResolveLazy sets the target of an unverified relation. A relation already
// verified by the semantic pass is never altered.
func (r *RelationRepository) ResolveLazy(fromID, toName, relType, toID string) error {
	_, err := r.db.Exec(`
		UPDATE relations
		SET to_id = ?
		WHERE from_id = ? AND to_name = ? AND rel_type = ? AND is_verified = 0
	`, toID, fromID, toName, relType)
	if err != nil {
		return fmt.Errorf("failed to lazy-resolve relation: %w", err)
	}
	return nil
}

// Get retrieves a relation by its unique key
func (r *RelationRepository) Get(fromID, toName, relType string) (*Relation, error) {
	row := r.db.QueryRow(
		"SELECT "+relationCols+" FROM relations WHERE from_id = ? AND to_name = ? AND rel_type = ?",
		fromID, toName, relType,
	)
	rel, err := scanRelation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relation: %w", err)
	}
	return rel, nil
}

// ListUnverifiedByFile returns the unverified relations issued from a
// file's entities, in source order. Both the semantic pass and the lazy
// linker consume this.
func (r *RelationRepository) ListUnverifiedByFile(filePath string) ([]*Relation, error) {
	rows, err := r.db.Query(`
		SELECT r.id, r.from_id, r.to_id, r.to_name, r.rel_type, r.is_verified, r.line, r.character
		FROM relations r
		JOIN metadata m ON r.from_id = m.entity_id
		WHERE m.file_path = ? AND r.is_verified = 0
		ORDER BY r.line, r.character
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations by file: %w", err)
	}
	defer rows.Close()

	return scanRelations(rows)
}

// ListUnresolved returns all relations with no target anywhere in the graph
func (r *RelationRepository) ListUnresolved() ([]*Relation, error) {
	rows, err := r.db.Query("SELECT " + relationCols + " FROM relations WHERE to_id IS NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved relations: %w", err)
	}
	defer rows.Close()

	return scanRelations(rows)
}

// ListByVerified returns relations filtered by verification status, joined
// with source and target entities for display. verified == nil lists all.
func (r *RelationRepository) ListByVerified(verified *bool) ([]*ResolvedRelation, error) {
	query := `
		SELECT r.id, r.from_id, r.to_id, r.to_name, r.rel_type, r.is_verified, r.line, r.character,
		       ef.name, mf.file_path,
		       et.name, et.kind, mt.file_path, mt.semantic_type, et.visibility
		FROM relations r
		JOIN entities ef ON r.from_id = ef.id
		JOIN metadata mf ON r.from_id = mf.entity_id
		LEFT JOIN entities et ON r.to_id = et.id
		LEFT JOIN metadata mt ON r.to_id = mt.entity_id
	`
	var args []interface{}
	if verified != nil {
		query += " WHERE r.is_verified = ?"
		if *verified {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	query += " ORDER BY mf.file_path, r.line"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	var results []*ResolvedRelation
	for rows.Next() {
		var rr ResolvedRelation
		if err := rows.Scan(
			&rr.ID,
			&rr.FromID,
			&rr.ToID,
			&rr.ToName,
			&rr.RelType,
			&rr.IsVerified,
			&rr.Line,
			&rr.Character,
			&rr.FromName,
			&rr.FromFile,
			&rr.TargetName,
			&rr.TargetKind,
			&rr.TargetFile,
			&rr.TargetType,
			&rr.TargetVisibility,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		results = append(results, &rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}

	return results, nil
}

// CountByStatus returns (verified, lazy, unresolved) relation counts
func (r *RelationRepository) CountByStatus() (verified, lazy, unresolved int, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN is_verified = 1 THEN 1 END),
			COUNT(CASE WHEN is_verified = 0 AND to_id IS NOT NULL THEN 1 END),
			COUNT(CASE WHEN to_id IS NULL THEN 1 END)
		FROM relations
	`).Scan(&verified, &lazy, &unresolved)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count relations: %w", err)
	}
	return verified, lazy, unresolved, nil
}

func scanRelation(row rowScanner) (*Relation, error) {
	var rel Relation
	err := row.Scan(
		&rel.ID,
		&rel.FromID,
		&rel.ToID,
		&rel.ToName,
		&rel.RelType,
		&rel.IsVerified,
		&rel.Line,
		&rel.Character,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func scanRelations(rows *sql.Rows) ([]*Relation, error) {
	var relations []*Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return relations, nil
}
