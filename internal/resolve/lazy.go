package resolve

import (
	"fmt"
	"path/filepath"

	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// Outcome classifies the result of one lazy resolution attempt
type Outcome string

const (
	// OutcomeResolved means exactly one candidate matched and the relation
	// now carries its id, unverified
	OutcomeResolved Outcome = "resolved"
	// OutcomeAmbiguous means a scope yielded multiple candidates; the
	// relation stays unresolved rather than guessing
	OutcomeAmbiguous Outcome = "ambiguous"
	// OutcomeExternal means no candidate exists in the scanned tree; the
	// reference points outside it and is recorded, not an error
	OutcomeExternal Outcome = "external"
	// OutcomeSkipped means the relation was already verified
	OutcomeSkipped Outcome = "skipped"
)

// Linker resolves relations by exact name match against the stored
// entities. Scoping narrows the candidate set before ambiguity is judged:
// the issuing file first, then its directory, then the whole tree. The
// first scope with candidates decides.
type Linker struct {
	entities  *storage.EntityRepository
	relations *storage.RelationRepository
	logger    *logging.Logger
}

// NewLinker creates a lazy linker over the given repositories
func NewLinker(entities *storage.EntityRepository, relations *storage.RelationRepository, logger *logging.Logger) *Linker {
	return &Linker{entities: entities, relations: relations, logger: logger}
}

// Resolve attempts to link one relation by name. The relation is updated
// in place in the store on success; ambiguous and external references are
// left untouched. Verified relations are never altered.
func (l *Linker) Resolve(rel *storage.Relation) (Outcome, error) {
	if rel.IsVerified {
		return OutcomeSkipped, nil
	}

	candidates, err := l.entities.ListByName(rel.ToName)
	if err != nil {
		return "", fmt.Errorf("failed to search candidates for %q: %w", rel.ToName, err)
	}

	// The issuing entity can share the target's name (recursion, shadowing);
	// it is never its own link target.
	candidates = excludeEntity(candidates, rel.FromID)
	if len(candidates) == 0 {
		l.debug("external reference", rel)
		return OutcomeExternal, nil
	}

	fromMeta, err := l.entities.GetMetadata(rel.FromID)
	if err != nil {
		return "", fmt.Errorf("failed to load metadata for %s: %w", rel.FromID, err)
	}
	fromFile := fromMeta.FilePath
	fromDir := filepath.Dir(fromFile)

	scopes := [][]*storage.NamedEntity{
		filterCandidates(candidates, func(c *storage.NamedEntity) bool {
			return c.FilePath == fromFile
		}),
		filterCandidates(candidates, func(c *storage.NamedEntity) bool {
			return filepath.Dir(c.FilePath) == fromDir
		}),
		candidates,
	}

	for _, scope := range scopes {
		switch len(scope) {
		case 0:
			continue
		case 1:
			target := scope[0]
			if err := l.relations.ResolveLazy(rel.FromID, rel.ToName, rel.RelType, target.ID); err != nil {
				return "", fmt.Errorf("failed to store lazy link: %w", err)
			}
			rel.ToID = &target.ID
			return OutcomeResolved, nil
		default:
			l.debug("ambiguous reference", rel)
			return OutcomeAmbiguous, nil
		}
	}

	// Unreachable: the global scope holds every candidate
	return OutcomeExternal, nil
}

// ResolveAll runs the linker over every unresolved relation in the store
// and reports counts per outcome.
func (l *Linker) ResolveAll() (resolved, ambiguous, external int, err error) {
	unresolved, err := l.relations.ListUnresolved()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to list unresolved relations: %w", err)
	}

	for _, rel := range unresolved {
		outcome, resolveErr := l.Resolve(rel)
		if resolveErr != nil {
			return resolved, ambiguous, external, resolveErr
		}
		switch outcome {
		case OutcomeResolved:
			resolved++
		case OutcomeAmbiguous:
			ambiguous++
		case OutcomeExternal:
			external++
		}
	}
	return resolved, ambiguous, external, nil
}

func (l *Linker) debug(message string, rel *storage.Relation) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(message, map[string]interface{}{
		"from_id":  rel.FromID,
		"to_name":  rel.ToName,
		"rel_type": rel.RelType,
	})
}

func filterCandidates(candidates []*storage.NamedEntity, keep func(*storage.NamedEntity) bool) []*storage.NamedEntity {
	var out []*storage.NamedEntity
	for _, c := range candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func excludeEntity(candidates []*storage.NamedEntity, id string) []*storage.NamedEntity {
	return filterCandidates(candidates, func(c *storage.NamedEntity) bool {
		return c.ID != id
	})
}
