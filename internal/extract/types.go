// Package extract turns source text into entity records and raw relation
// intents. It knows nothing about resolution: its output is persisted as-is
// by the syntax pass and resolved later.
package extract

// EntityRecord is one extracted code construct with its metadata fields.
// Line coordinates are 0-based and inclusive.
type EntityRecord struct {
	ID           string // assigned at extraction time
	Name         string
	Kind         string // storage.Kind* values
	Visibility   string // storage.Visibility* values
	ParentID     *string
	LineStart    int
	LineEnd      int
	Docstring    string
	Signature    string
	SemanticType string
	MethodKind   *string
}

// RelationIntent is a raw, unresolved reference found in the source. Call
// intents carry the precise coordinates of the referenced name so the
// semantic pass can query a definition there; inherits/imports intents may
// carry them when the extractor knows the exact token position.
type RelationIntent struct {
	FromID     string
	TargetName string
	RelType    string // storage.Rel* values
	Line       *int   // 0-based coordinates of the referenced name
	Character  *int
}

// FileModel is the extraction result for one source file
type FileModel struct {
	Path     string
	Entities []*EntityRecord
	Intents  []*RelationIntent
}

// Extractor produces a FileModel from source text
type Extractor interface {
	ExtractFile(path string, content []byte) (*FileModel, error)
}
