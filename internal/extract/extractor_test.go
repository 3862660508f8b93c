package extract

import (
	"testing"

	"codegraph/internal/storage"
)

const sampleSource = `"""Top doc."""
import os
from helpers import load

class Base:
    pass

class Greeter(Base):
    """Says hello."""

    def __init__(self, name):
        self.name = name

    @staticmethod
    def make():
        return Greeter("x")

    def greet(self):
        return format_name(self.name)

def format_name(n):
    return n.upper()

def _hidden():
    pass
`

func extractSample(t *testing.T) *FileModel {
	t.Helper()
	model, err := NewPythonExtractor().ExtractFile("pkg/greeter.py", []byte(sampleSource))
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	return model
}

func findEntity(t *testing.T, model *FileModel, name string) *EntityRecord {
	t.Helper()
	for _, e := range model.Entities {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entity %q not found", name)
	return nil
}

func findIntent(model *FileModel, target, relType string) *RelationIntent {
	for _, in := range model.Intents {
		if in.TargetName == target && in.RelType == relType {
			return in
		}
	}
	return nil
}

func TestExtractModuleEntity(t *testing.T) {
	model := extractSample(t)

	mod := findEntity(t, model, "greeter")
	if mod.Kind != storage.KindModule {
		t.Errorf("expected module kind, got %q", mod.Kind)
	}
	if mod.ParentID != nil {
		t.Error("module entity must be the root of the parent tree")
	}
	if mod.Docstring != "Top doc." {
		t.Errorf("expected module docstring, got %q", mod.Docstring)
	}
	if mod.SemanticType != "Module" {
		t.Errorf("expected semantic type Module, got %q", mod.SemanticType)
	}
}

func TestExtractClassHierarchy(t *testing.T) {
	model := extractSample(t)

	mod := findEntity(t, model, "greeter")
	greeter := findEntity(t, model, "Greeter")
	if greeter.Kind != storage.KindClass {
		t.Errorf("expected class kind, got %q", greeter.Kind)
	}
	if greeter.ParentID == nil || *greeter.ParentID != mod.ID {
		t.Error("class must parent to the module entity")
	}
	if greeter.LineStart != 7 {
		t.Errorf("expected class to start at line 7, got %d", greeter.LineStart)
	}
	if greeter.Docstring != "Says hello." {
		t.Errorf("expected class docstring, got %q", greeter.Docstring)
	}

	greet := findEntity(t, model, "greet")
	if greet.Kind != storage.KindMethod {
		t.Errorf("expected method kind, got %q", greet.Kind)
	}
	if greet.ParentID == nil || *greet.ParentID != greeter.ID {
		t.Error("method must parent to its class")
	}

	formatName := findEntity(t, model, "format_name")
	if formatName.Kind != storage.KindFunction {
		t.Errorf("top-level def is a function, got %q", formatName.Kind)
	}
	if formatName.ParentID == nil || *formatName.ParentID != mod.ID {
		t.Error("top-level function must parent to the module entity")
	}
}

func TestExtractVisibilityAndSemanticTypes(t *testing.T) {
	model := extractSample(t)

	init := findEntity(t, model, "__init__")
	if init.Visibility != "public" {
		t.Error("dunder methods are the public interface")
	}
	if init.SemanticType != "Constructor" {
		t.Errorf("expected Constructor, got %q", init.SemanticType)
	}

	hidden := findEntity(t, model, "_hidden")
	if hidden.Visibility != "private" {
		t.Error("single underscore prefix means private")
	}
}

func TestExtractMethodKinds(t *testing.T) {
	model := extractSample(t)

	make_ := findEntity(t, model, "make")
	if make_.MethodKind == nil || *make_.MethodKind != MethodKindStatic {
		t.Errorf("expected static method kind, got %v", make_.MethodKind)
	}
	if make_.LineStart != 14 {
		t.Errorf("decorated method span starts at the def line, got %d", make_.LineStart)
	}

	greet := findEntity(t, model, "greet")
	if greet.MethodKind == nil || *greet.MethodKind != MethodKindInstance {
		t.Errorf("expected instance method kind, got %v", greet.MethodKind)
	}

	formatName := findEntity(t, model, "format_name")
	if formatName.MethodKind != nil {
		t.Error("plain functions carry no method kind")
	}
}

func TestExtractCallSites(t *testing.T) {
	model := extractSample(t)

	call := findIntent(model, "format_name", storage.RelCalls)
	if call == nil {
		t.Fatal("expected a call intent for format_name")
	}
	greet := findEntity(t, model, "greet")
	if call.FromID != greet.ID {
		t.Error("call must be attributed to the innermost enclosing function")
	}
	if call.Line == nil || *call.Line != 18 {
		t.Errorf("expected call at line 18, got %v", call.Line)
	}
	if call.Character == nil {
		t.Error("call sites must carry a character coordinate")
	}

	// Attribute calls reduce to the final name token
	upper := findIntent(model, "upper", storage.RelCalls)
	if upper == nil {
		t.Fatal("expected a call intent for upper")
	}
	formatName := findEntity(t, model, "format_name")
	if upper.FromID != formatName.ID {
		t.Error("attribute call attributed to the wrong entity")
	}

	ctor := findIntent(model, "Greeter", storage.RelCalls)
	if ctor == nil {
		t.Fatal("expected a call intent for the Greeter constructor call")
	}
}

func TestExtractInheritsAndImports(t *testing.T) {
	model := extractSample(t)

	inherits := findIntent(model, "Base", storage.RelInherits)
	if inherits == nil {
		t.Fatal("expected an inherits intent for Base")
	}
	greeter := findEntity(t, model, "Greeter")
	if inherits.FromID != greeter.ID {
		t.Error("inherits must be issued by the subclass")
	}
	if inherits.Line == nil || *inherits.Line != 7 {
		t.Errorf("expected inherits coordinates on the class line, got %v", inherits.Line)
	}

	mod := findEntity(t, model, "greeter")
	osImport := findIntent(model, "os", storage.RelImports)
	if osImport == nil {
		t.Fatal("expected an imports intent for os")
	}
	if osImport.FromID != mod.ID {
		t.Error("module-level imports are issued by the module entity")
	}

	if findIntent(model, "load", storage.RelImports) == nil {
		t.Error("expected an imports intent for the from-imported name")
	}
}

func TestExtractEmptyFile(t *testing.T) {
	model, err := NewPythonExtractor().ExtractFile("empty.py", []byte(""))
	if err != nil {
		t.Fatalf("ExtractFile failed on empty source: %v", err)
	}
	if len(model.Entities) != 1 {
		t.Fatalf("expected only the module entity, got %d", len(model.Entities))
	}
	if model.Entities[0].Kind != storage.KindModule {
		t.Error("empty file still gets its module entity")
	}
	if len(model.Intents) != 0 {
		t.Errorf("expected no intents, got %d", len(model.Intents))
	}
}

func TestExtractUniqueEntityIDs(t *testing.T) {
	model := extractSample(t)
	seen := make(map[string]bool)
	for _, e := range model.Entities {
		if seen[e.ID] {
			t.Fatalf("duplicate entity id %s", e.ID)
		}
		seen[e.ID] = true
	}
}
