package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"codegraph/internal/extract"
	"codegraph/internal/lsp"
	"codegraph/internal/storage"
)

// fakeExtractor serves canned models keyed by base file name
type fakeExtractor struct {
	models map[string]*extract.FileModel
	calls  int
}

func (f *fakeExtractor) ExtractFile(path string, content []byte) (*extract.FileModel, error) {
	f.calls++
	model, ok := f.models[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("no model for %s", path)
	}
	// The path in the model must match where the file actually lives
	copied := *model
	copied.Path = path
	return &copied, nil
}

// fakeSemanticClient scripts definition answers and can simulate a
// mid-scan crash
type fakeSemanticClient struct {
	mu       sync.Mutex
	ready    bool
	startErr error
	defs     map[string]*lsp.Location // "<uri>:<line>:<char>"
	hover    string
	answered int
	dieAfter int // fail the connection after this many answers, 0 = never
	opened   []string
}

func (f *fakeSemanticClient) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSemanticClient) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSemanticClient) OpenDocument(fileURI, content string) error {
	f.mu.Lock()
	f.opened = append(f.opened, fileURI)
	f.mu.Unlock()
	return nil
}

func (f *fakeSemanticClient) Definition(fileURI string, line, character int) *lsp.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil
	}
	if f.dieAfter > 0 && f.answered >= f.dieAfter {
		f.ready = false
		return nil
	}
	loc := f.defs[fmt.Sprintf("%s:%d:%d", fileURI, line, character)]
	if loc != nil {
		f.answered++
	}
	return loc
}

func (f *fakeSemanticClient) Hover(fileURI string, line, character int) string {
	return f.hover
}

func (f *fakeSemanticClient) Shutdown() error {
	f.mu.Lock()
	f.ready = false
	f.mu.Unlock()
	return nil
}

// writeSources lays the classic two-file setup on disk: a.py defines
// Foo.bar, b.py calls it.
func writeSources(t *testing.T) (dir, pathA, pathB string) {
	t.Helper()
	dir = t.TempDir()
	pathA = filepath.Join(dir, "a.py")
	pathB = filepath.Join(dir, "b.py")

	srcA := "class Foo:\n    def bar(self):\n        return 1\n"
	srcB := "from a import Foo\n\ndef use():\n    Foo().bar()\n"
	if err := os.WriteFile(pathA, []byte(srcA), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte(srcB), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, pathA, pathB
}

func twoFileModels() map[string]*extract.FileModel {
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }

	return map[string]*extract.FileModel{
		"a.py": {
			Entities: []*extract.EntityRecord{
				{ID: "mod-a", Name: "a", Kind: storage.KindModule, Visibility: storage.VisibilityPublic, LineStart: 0, LineEnd: 2, SemanticType: "Module"},
				{ID: "cls-foo", Name: "Foo", Kind: storage.KindClass, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-a"), LineStart: 0, LineEnd: 2, SemanticType: "Class"},
				{ID: "meth-bar", Name: "bar", Kind: storage.KindMethod, Visibility: storage.VisibilityPublic, ParentID: strPtr("cls-foo"), LineStart: 1, LineEnd: 2, SemanticType: "Method"},
			},
		},
		"b.py": {
			Entities: []*extract.EntityRecord{
				{ID: "mod-b", Name: "b", Kind: storage.KindModule, Visibility: storage.VisibilityPublic, LineStart: 0, LineEnd: 3, SemanticType: "Module"},
				{ID: "fn-use", Name: "use", Kind: storage.KindFunction, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-b"), LineStart: 2, LineEnd: 3, SemanticType: "Function"},
			},
			Intents: []*extract.RelationIntent{
				{FromID: "fn-use", TargetName: "bar", RelType: storage.RelCalls, Line: intPtr(3), Character: intPtr(10)},
			},
		},
	}
}

func newTestOrchestrator(db *storage.DB, extractor extract.Extractor, client SemanticClient) *Orchestrator {
	return NewOrchestrator(OrchestratorOptions{
		DB:        db,
		Extractor: extractor,
		Client:    client,
		Workers:   1,
	})
}

func TestSyntaxPassPersistsUnresolved(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, nil)

	stats, err := o.RunSyntaxPass(context.Background(), []string{pathA, pathB})
	if err != nil {
		t.Fatalf("RunSyntaxPass failed: %v", err)
	}
	if stats.FilesScanned != 2 {
		t.Errorf("expected 2 files scanned, got %d", stats.FilesScanned)
	}
	if stats.Entities != 5 || stats.Relations != 1 {
		t.Errorf("expected 5 entities and 1 relation, got %d/%d", stats.Entities, stats.Relations)
	}

	rel, err := storage.NewRelationRepository(db).Get("fn-use", "bar", storage.RelCalls)
	if err != nil {
		t.Fatalf("failed to load relation: %v", err)
	}
	if rel.ToID != nil || rel.IsVerified {
		t.Error("syntax pass must persist the relation unresolved")
	}
	if rel.Line == nil || *rel.Line != 3 {
		t.Error("call-site coordinates must be persisted")
	}

	// The file record lands in the same transaction as the metadata
	// rows that reference it
	fileRec, err := storage.NewFileRepository(db).Get(pathA)
	if err != nil {
		t.Fatalf("failed to load file record: %v", err)
	}
	if fileRec == nil {
		t.Fatal("expected a file record after the syntax pass")
	}
	if fileRec.Fingerprint == "" {
		t.Error("expected a recorded fingerprint")
	}

	// Symbol hashes are backfilled for every extracted entity
	entities := storage.NewEntityRepository(db)
	bar, err := entities.GetByID("meth-bar")
	if err != nil {
		t.Fatalf("failed to load entity: %v", err)
	}
	if bar.SymbolHash == nil || *bar.SymbolHash == "" {
		t.Error("expected a symbol hash on extracted entities")
	}
}

func TestSyntaxPassSkipsUnchangedFingerprint(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)
	extractor := &fakeExtractor{models: twoFileModels()}
	o := newTestOrchestrator(db, extractor, nil)

	ctx := context.Background()
	if _, err := o.RunSyntaxPass(ctx, []string{pathA, pathB}); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	firstCalls := extractor.calls

	stats, err := o.RunSyntaxPass(ctx, []string{pathA, pathB})
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if stats.FilesSkipped != 2 || stats.FilesScanned != 0 {
		t.Errorf("expected both files skipped, got scanned=%d skipped=%d", stats.FilesScanned, stats.FilesSkipped)
	}
	if extractor.calls != firstCalls {
		t.Error("unchanged fingerprints must skip re-extraction")
	}
}

func TestRescanKeepsSingleRelationRow(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := o.RunSyntaxPass(ctx, []string{pathA, pathB}); err != nil {
			t.Fatalf("pass %d failed: %v", i, err)
		}
		// Touch b.py so the next pass re-extracts it
		content, _ := os.ReadFile(pathB)
		os.WriteFile(pathB, append(content, []byte(fmt.Sprintf("# v%d\n", i))...), 0644)
	}

	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM relations WHERE from_id = ? AND to_name = ? AND rel_type = ?
	`, "fn-use", "bar", storage.RelCalls).Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one relation row after rescans, got %d", count)
	}
}

func TestScenarioALazyOnly(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, nil)

	stats, err := o.RunScan(context.Background(), []string{pathA, pathB})
	if err != nil {
		t.Fatalf("RunScan failed: %v", err)
	}
	if stats.SemanticAvailable {
		t.Error("no client was configured; semantic must report unavailable")
	}
	if stats.LazyResolved != 1 {
		t.Errorf("expected 1 lazy-resolved relation, got %d", stats.LazyResolved)
	}

	rel, err := storage.NewRelationRepository(db).Get("fn-use", "bar", storage.RelCalls)
	if err != nil {
		t.Fatalf("failed to load relation: %v", err)
	}
	if rel.ToID == nil || *rel.ToID != "meth-bar" {
		t.Errorf("expected lazy link to meth-bar, got %v", rel.ToID)
	}
	if rel.IsVerified {
		t.Error("lazy link must not be verified")
	}
}

func TestScenarioBSemanticUpgrade(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)

	client := &fakeSemanticClient{
		defs: map[string]*lsp.Location{
			// The call site in b.py resolves to bar's declaration in a.py
			fmt.Sprintf("%s:3:10", PathToURI(pathB)): {URI: PathToURI(pathA), Line: 1, Character: 8},
		},
	}
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, client)

	stats, err := o.RunScan(context.Background(), []string{pathA, pathB})
	if err != nil {
		t.Fatalf("RunScan failed: %v", err)
	}
	if !stats.SemanticAvailable {
		t.Fatal("expected the semantic layer to be available")
	}
	if stats.Verified != 1 {
		t.Errorf("expected 1 verified relation, got %d", stats.Verified)
	}

	relations := storage.NewRelationRepository(db)
	rel, err := relations.Get("fn-use", "bar", storage.RelCalls)
	if err != nil {
		t.Fatalf("failed to load relation: %v", err)
	}
	if !rel.IsVerified || rel.ToID == nil || *rel.ToID != "meth-bar" {
		t.Errorf("expected verified link to meth-bar, got verified=%v to_id=%v", rel.IsVerified, rel.ToID)
	}

	// A later lazy run must leave the verified link untouched
	if _, err := o.RunLazyFallback(); err != nil {
		t.Fatalf("RunLazyFallback failed: %v", err)
	}
	after, _ := relations.Get("fn-use", "bar", storage.RelCalls)
	if !after.IsVerified || *after.ToID != "meth-bar" {
		t.Error("lazy fallback altered a verified relation")
	}
}

func TestScenarioCCrashMidPass(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	// Two independent callers in separate files, each with its own target
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }
	models := map[string]*extract.FileModel{
		"lib.py": {
			Entities: []*extract.EntityRecord{
				{ID: "mod-lib", Name: "lib", Kind: storage.KindModule, Visibility: storage.VisibilityPublic, LineStart: 0, LineEnd: 10, SemanticType: "Module"},
				{ID: "fn-alpha", Name: "alpha", Kind: storage.KindFunction, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-lib"), LineStart: 1, LineEnd: 3, SemanticType: "Function"},
				{ID: "fn-beta", Name: "beta", Kind: storage.KindFunction, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-lib"), LineStart: 5, LineEnd: 7, SemanticType: "Function"},
			},
		},
		"c1.py": {
			Entities: []*extract.EntityRecord{
				{ID: "mod-c1", Name: "c1", Kind: storage.KindModule, Visibility: storage.VisibilityPublic, LineStart: 0, LineEnd: 5, SemanticType: "Module"},
				{ID: "fn-u1", Name: "u1", Kind: storage.KindFunction, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-c1"), LineStart: 1, LineEnd: 3, SemanticType: "Function"},
			},
			Intents: []*extract.RelationIntent{
				{FromID: "fn-u1", TargetName: "alpha", RelType: storage.RelCalls, Line: intPtr(2), Character: intPtr(4)},
			},
		},
		"c2.py": {
			Entities: []*extract.EntityRecord{
				{ID: "mod-c2", Name: "c2", Kind: storage.KindModule, Visibility: storage.VisibilityPublic, LineStart: 0, LineEnd: 5, SemanticType: "Module"},
				{ID: "fn-u2", Name: "u2", Kind: storage.KindFunction, Visibility: storage.VisibilityPublic, ParentID: strPtr("mod-c2"), LineStart: 1, LineEnd: 3, SemanticType: "Function"},
			},
			Intents: []*extract.RelationIntent{
				{FromID: "fn-u2", TargetName: "beta", RelType: storage.RelCalls, Line: intPtr(2), Character: intPtr(4)},
			},
		},
	}

	var paths []string
	for _, name := range []string{"lib.py", "c1.py", "c2.py"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("# "+name+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	libPath, c1Path := paths[0], paths[1]

	client := &fakeSemanticClient{
		dieAfter: 1, // crash after the first successful answer
		defs: map[string]*lsp.Location{
			fmt.Sprintf("%s:2:4", PathToURI(c1Path)): {URI: PathToURI(libPath), Line: 1, Character: 4},
		},
	}
	o := newTestOrchestrator(db, &fakeExtractor{models: models}, client)

	if _, err := o.RunScan(context.Background(), paths); err != nil {
		t.Fatalf("scan must survive a semantic crash, got: %v", err)
	}

	relations := storage.NewRelationRepository(db)
	r1, err := relations.Get("fn-u1", "alpha", storage.RelCalls)
	if err != nil {
		t.Fatalf("failed to load relation: %v", err)
	}
	if !r1.IsVerified || r1.ToID == nil || *r1.ToID != "fn-alpha" {
		t.Error("relation resolved before the crash must stay verified")
	}

	r2, err := relations.Get("fn-u2", "beta", storage.RelCalls)
	if err != nil {
		t.Fatalf("failed to load relation: %v", err)
	}
	if r2.IsVerified {
		t.Error("relation after the crash must not be verified")
	}
	if r2.ToID == nil || *r2.ToID != "fn-beta" {
		t.Errorf("expected lazy fallback to link beta, got %v", r2.ToID)
	}
}

func TestSemanticPassUnavailableClient(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)

	client := &fakeSemanticClient{startErr: fmt.Errorf("spawn: pyright not found")}
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, client)

	stats, err := o.RunScan(context.Background(), []string{pathA, pathB})
	if err != nil {
		t.Fatalf("scan must not fail when the semantic layer is down: %v", err)
	}
	if stats.SemanticAvailable {
		t.Error("expected semantic layer to report unavailable")
	}
	if stats.LazyResolved != 1 {
		t.Errorf("expected the lazy linker to pick up the slack, got %d", stats.LazyResolved)
	}
}

func TestSemanticPassCancellation(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)
	o := newTestOrchestrator(db, &fakeExtractor{models: twoFileModels()}, &fakeSemanticClient{})

	if _, err := o.RunSyntaxPass(context.Background(), []string{pathA, pathB}); err != nil {
		t.Fatalf("syntax pass failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled semantic pass is not an error; committed progress stays
	if _, err := o.RunSemanticPass(ctx, []string{pathA, pathB}); err != nil {
		t.Fatalf("cancelled semantic pass must not error: %v", err)
	}
}

func TestHoverBackfillsTypeHints(t *testing.T) {
	db := newTestDB(t)
	_, pathA, pathB := writeSources(t)

	client := &fakeSemanticClient{hover: "def bar(self) -> int"}
	o := NewOrchestrator(OrchestratorOptions{
		DB:        db,
		Extractor: &fakeExtractor{models: twoFileModels()},
		Client:    client,
		Workers:   1,
		Hover:     true,
	})

	if _, err := o.RunScan(context.Background(), []string{pathA, pathB}); err != nil {
		t.Fatalf("RunScan failed: %v", err)
	}

	meta, err := storage.NewEntityRepository(db).GetMetadata("meth-bar")
	if err != nil {
		t.Fatalf("failed to load metadata: %v", err)
	}
	if meta.TypeHint == nil || *meta.TypeHint != "def bar(self) -> int" {
		t.Errorf("expected hover result as type hint, got %v", meta.TypeHint)
	}
}
