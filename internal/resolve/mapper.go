// Package resolve contains the hybrid resolution engine: the symbol mapper
// that correlates file/line coordinates to stored entities, the lazy linker
// that resolves references by name, and the orchestrator that combines them
// with the semantic client across the two-pass scan.
package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"codegraph/internal/storage"
)

// span is one entity's line range within a file, 0-based inclusive
type span struct {
	start    int
	end      int
	entityID string
}

// Mapper maps file/line locations to the innermost enclosing entity. Span
// indices are built lazily per file and live for one scan; a fresh syntax
// pass over a file must invalidate that file's index.
type Mapper struct {
	entities *storage.EntityRepository

	mu      sync.Mutex
	indices map[string][]span
}

// NewMapper creates a mapper backed by the given entity repository
func NewMapper(entities *storage.EntityRepository) *Mapper {
	return &Mapper{
		entities: entities,
		indices:  make(map[string][]span),
	}
}

// FindEnclosingEntity returns the id of the entity with the smallest span
// containing line in filePath. Identical spans prefer the entity declared
// further down, i.e. the more deeply nested one. Returns "" when no span
// contains the line.
func (m *Mapper) FindEnclosingEntity(filePath string, line int) (string, error) {
	index, err := m.fileIndex(filePath)
	if err != nil {
		return "", err
	}

	for _, s := range index {
		if s.start <= line && line <= s.end {
			return s.entityID, nil
		}
	}
	return "", nil
}

// fileIndex returns the sorted span index for a file, building it on first
// use. Sorted by span size ascending then start descending, so a linear
// scan stops at the innermost match.
func (m *Mapper) fileIndex(filePath string) ([]span, error) {
	m.mu.Lock()
	index, ok := m.indices[filePath]
	m.mu.Unlock()
	if ok {
		return index, nil
	}

	entities, err := m.entities.ListByFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to build span index for %s: %w", filePath, err)
	}

	index = make([]span, 0, len(entities))
	for _, e := range entities {
		if e.LineStart == nil || e.LineEnd == nil {
			continue
		}
		index = append(index, span{start: *e.LineStart, end: *e.LineEnd, entityID: e.ID})
	}

	sort.Slice(index, func(i, j int) bool {
		si := index[i].end - index[i].start
		sj := index[j].end - index[j].start
		if si != sj {
			return si < sj
		}
		return index[i].start > index[j].start
	})

	m.mu.Lock()
	m.indices[filePath] = index
	m.mu.Unlock()

	return index, nil
}

// Invalidate drops the cached index for a file. Call after rewriting the
// file's entities in a fresh syntax pass.
func (m *Mapper) Invalidate(filePath string) {
	m.mu.Lock()
	delete(m.indices, filePath)
	m.mu.Unlock()
}

// InvalidateAll drops every cached index
func (m *Mapper) InvalidateAll() {
	m.mu.Lock()
	m.indices = make(map[string][]span)
	m.mu.Unlock()
}

// GenerateSymbolHash derives the stable cross-scan lookup key for an
// entity: hex SHA-256 of "<fileURI>#<qualifiedName>".
func GenerateSymbolHash(fileURI, qualifiedName string) string {
	sum := sha256.Sum256([]byte(fileURI + "#" + qualifiedName))
	return hex.EncodeToString(sum[:])
}

// UpdateSymbolHash computes and stores the symbol hash for an entity
func (m *Mapper) UpdateSymbolHash(entityID, fileURI string) error {
	qualified, err := m.entities.QualifiedName(entityID)
	if err != nil {
		return err
	}
	return m.entities.UpdateSymbolHash(entityID, GenerateSymbolHash(fileURI, qualified))
}

// PathToURI converts a file system path to a file:// URI
func PathToURI(path string) string {
	return "file://" + path
}

// URIToPath converts a file:// URI back to a file system path
func URIToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
