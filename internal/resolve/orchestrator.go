package resolve

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"codegraph/internal/extract"
	"codegraph/internal/logging"
	"codegraph/internal/lsp"
	"codegraph/internal/storage"
)

// SemanticClient is the slice of the semantic server client the
// orchestrator needs. Tests substitute a fake; production uses *lsp.Client.
type SemanticClient interface {
	Start() error
	Ready() bool
	OpenDocument(fileURI, content string) error
	Definition(fileURI string, line, character int) *lsp.Location
	Hover(fileURI string, line, character int) string
	Shutdown() error
}

// Stats reports what a pass did
type Stats struct {
	FilesScanned      int  `json:"files_scanned"`
	FilesSkipped      int  `json:"files_skipped"`
	Entities          int  `json:"entities"`
	Relations         int  `json:"relations"`
	Verified          int  `json:"verified"`
	LazyResolved      int  `json:"lazy_resolved"`
	Ambiguous         int  `json:"ambiguous"`
	External          int  `json:"external"`
	SemanticAvailable bool `json:"semantic_available"`
}

// Orchestrator runs the two-pass scan: syntax extraction and persistence
// first, then optional semantic enrichment, with the lazy linker as the
// fallback for whatever the semantic pass could not settle.
type Orchestrator struct {
	db        *storage.DB
	files     *storage.FileRepository
	entities  *storage.EntityRepository
	relations *storage.RelationRepository
	mapper    *Mapper
	linker    *Linker
	extractor extract.Extractor
	client    SemanticClient
	logger    *logging.Logger

	workers      int
	hoverEnabled bool
}

// OrchestratorOptions configures a scan
type OrchestratorOptions struct {
	DB        *storage.DB
	Extractor extract.Extractor
	Client    SemanticClient // nil disables the semantic pass
	Logger    *logging.Logger
	Workers   int
	Hover     bool
}

// NewOrchestrator wires the resolution engine over one database
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	entities := storage.NewEntityRepository(opts.DB)
	relations := storage.NewRelationRepository(opts.DB)
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Orchestrator{
		db:           opts.DB,
		files:        storage.NewFileRepository(opts.DB),
		entities:     entities,
		relations:    relations,
		mapper:       NewMapper(entities),
		linker:       NewLinker(entities, relations, opts.Logger),
		extractor:    opts.Extractor,
		client:       opts.Client,
		logger:       opts.Logger,
		workers:      workers,
		hoverEnabled: opts.Hover,
	}
}

// Mapper exposes the scan's symbol mapper
func (o *Orchestrator) Mapper() *Mapper { return o.mapper }

// Linker exposes the scan's lazy linker
func (o *Orchestrator) Linker() *Linker { return o.linker }

// RunSyntaxPass extracts and persists every file in the set. Unchanged
// fingerprints skip re-extraction; their persisted relations keep their
// recorded call-site coordinates for the semantic pass. Extraction runs
// sequentially: the scan is the single writer to the store.
func (o *Orchestrator) RunSyntaxPass(ctx context.Context, paths []string) (*Stats, error) {
	stats := &Stats{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return stats, fmt.Errorf("failed to read %s: %w", path, err)
		}

		fingerprint := storage.Fingerprint(content)
		existing, err := o.files.Get(path)
		if err != nil {
			return stats, err
		}
		if existing != nil && existing.Fingerprint == fingerprint {
			stats.FilesSkipped++
			continue
		}

		model, err := o.extractor.ExtractFile(path, content)
		if err != nil {
			return stats, fmt.Errorf("failed to extract %s: %w", path, err)
		}

		if err := o.persistFile(model, fingerprint); err != nil {
			return stats, err
		}

		o.mapper.Invalidate(path)
		stats.FilesScanned++
		stats.Entities += len(model.Entities)
		stats.Relations += len(model.Intents)

		if o.logger != nil {
			o.logger.Debug("Extracted file", map[string]interface{}{
				"path":      path,
				"entities":  len(model.Entities),
				"relations": len(model.Intents),
			})
		}
	}

	if err := o.updateSymbolHashes(paths); err != nil {
		return stats, err
	}

	return stats, nil
}

// persistFile replaces a file's entities and refreshes its relations in
// one transaction. Entity replacement cascades old metadata and relations
// away before the fresh rows go in.
func (o *Orchestrator) persistFile(model *extract.FileModel, fingerprint string) error {
	return o.db.WithTx(func(tx *sql.Tx) error {
		// The file row must exist before any metadata references it
		if err := o.files.UpsertTx(tx, model.Path, fingerprint, storage.SchemaVersion); err != nil {
			return err
		}

		if err := o.entities.DeleteByFileTx(tx, model.Path); err != nil {
			return err
		}

		for _, rec := range model.Entities {
			entity := &storage.Entity{
				ID:         rec.ID,
				Name:       rec.Name,
				Kind:       rec.Kind,
				Visibility: rec.Visibility,
				ParentID:   rec.ParentID,
				LineStart:  &rec.LineStart,
				LineEnd:    &rec.LineEnd,
			}
			meta := &storage.Metadata{
				EntityID:     rec.ID,
				FilePath:     model.Path,
				Docstring:    rec.Docstring,
				Signature:    rec.Signature,
				SemanticType: rec.SemanticType,
				MethodKind:   rec.MethodKind,
			}
			if err := o.entities.CreateTx(tx, entity, meta); err != nil {
				return err
			}
		}

		for _, intent := range model.Intents {
			rel := &storage.Relation{
				FromID:    intent.FromID,
				ToName:    intent.TargetName,
				RelType:   intent.RelType,
				Line:      intent.Line,
				Character: intent.Character,
			}
			if err := o.relations.UpsertUnresolvedTx(tx, rel); err != nil {
				return err
			}
		}

		return nil
	})
}

func (o *Orchestrator) updateSymbolHashes(paths []string) error {
	for _, path := range paths {
		entities, err := o.entities.ListByFile(path)
		if err != nil {
			return err
		}
		uri := PathToURI(path)
		for _, e := range entities {
			if e.SymbolHash != nil {
				continue
			}
			if err := o.mapper.UpdateSymbolHash(e.ID, uri); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunSemanticPass upgrades relations to verified links by querying the
// semantic server at each recorded call site. Files are processed by a
// bounded worker pool sharing the one server connection; within a file,
// call sites resolve in source order. A client that never reaches Ready,
// or fails mid-pass, leaves the remaining relations for the lazy linker —
// never an error for the scan.
func (o *Orchestrator) RunSemanticPass(ctx context.Context, paths []string) (*Stats, error) {
	stats := &Stats{}

	if o.client == nil {
		return stats, nil
	}

	if !o.client.Ready() {
		if err := o.client.Start(); err != nil {
			if o.logger != nil {
				o.logger.Warn("Semantic layer unavailable, lazy links only", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return stats, nil
		}
	}
	defer o.client.Shutdown()
	stats.SemanticAvailable = true

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)

	for _, path := range paths {
		path := path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if !o.client.Ready() {
				// Connection died; leave the rest for the lazy linker
				return nil
			}

			verified, err := o.resolveFile(path)
			if err != nil {
				return err
			}

			mu.Lock()
			stats.FilesScanned++
			stats.Verified += verified
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded || ctx.Err() != nil {
			// Cancellation keeps committed progress; report what happened
			return stats, nil
		}
		return stats, err
	}

	return stats, nil
}

// resolveFile opens one file with the semantic server and tries to verify
// each of its unverified relations at the recorded call-site coordinates.
func (o *Orchestrator) resolveFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	uri := PathToURI(path)
	if err := o.client.OpenDocument(uri, string(content)); err != nil {
		return 0, nil
	}

	rels, err := o.relations.ListUnverifiedByFile(path)
	if err != nil {
		return 0, err
	}

	verified := 0
	for _, rel := range rels {
		if rel.Line == nil || rel.Character == nil {
			continue // no coordinates to query at
		}

		loc := o.client.Definition(uri, *rel.Line, *rel.Character)
		if loc == nil {
			continue
		}

		targetID, err := o.mapper.FindEnclosingEntity(URIToPath(loc.URI), loc.Line)
		if err != nil {
			return verified, err
		}
		if targetID == "" {
			continue // definition points outside the scanned tree
		}

		if err := o.relations.Verify(rel.FromID, rel.ToName, rel.RelType, targetID); err != nil {
			return verified, err
		}
		verified++
	}

	if o.hoverEnabled {
		o.backfillTypeHints(uri, path)
	}

	return verified, nil
}

// backfillTypeHints queries hover at each entity's declaration site to
// populate type hints. Best-effort only.
func (o *Orchestrator) backfillTypeHints(uri, path string) {
	entities, err := o.entities.ListByFile(path)
	if err != nil {
		return
	}
	for _, e := range entities {
		if e.LineStart == nil || e.Kind == storage.KindModule {
			continue
		}
		if hint := o.client.Hover(uri, *e.LineStart, 0); hint != "" {
			_ = o.entities.UpdateTypeHint(e.ID, hint)
		}
	}
}

// RunLazyFallback runs the lazy linker over everything still unresolved
// after the semantic pass (or instead of it).
func (o *Orchestrator) RunLazyFallback() (*Stats, error) {
	stats := &Stats{}
	resolved, ambiguous, external, err := o.linker.ResolveAll()
	if err != nil {
		return stats, err
	}
	stats.LazyResolved = resolved
	stats.Ambiguous = ambiguous
	stats.External = external
	return stats, nil
}

// RunScan is the full pipeline: syntax pass, optional semantic pass, lazy
// fallback. The merged stats describe the whole scan.
func (o *Orchestrator) RunScan(ctx context.Context, paths []string) (*Stats, error) {
	stats, err := o.RunSyntaxPass(ctx, paths)
	if err != nil {
		return stats, err
	}

	semStats, err := o.RunSemanticPass(ctx, paths)
	if err != nil {
		return stats, err
	}
	stats.Verified = semStats.Verified
	stats.SemanticAvailable = semStats.SemanticAvailable

	lazyStats, err := o.RunLazyFallback()
	if err != nil {
		return stats, err
	}
	stats.LazyResolved = lazyStats.LazyResolved
	stats.Ambiguous = lazyStats.Ambiguous
	stats.External = lazyStats.External

	return stats, nil
}
