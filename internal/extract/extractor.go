package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"

	"codegraph/internal/storage"
)

// PythonExtractor turns Python source into entity records and relation
// intents. It reports what the syntax says and nothing more; whether a
// referenced name exists anywhere is the resolver's problem.
type PythonExtractor struct {
	parser *Parser
}

// NewPythonExtractor creates an extractor with its own parser instance
func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{parser: NewParser()}
}

// ExtractFile parses one file and returns its model. Every file gets a
// module entity rooting the parent tree; classes, functions and methods
// hang off it with 0-based inclusive line spans.
func (e *PythonExtractor) ExtractFile(path string, content []byte) (*FileModel, error) {
	root, err := e.parser.Parse(context.Background(), content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	moduleID := uuid.NewString()

	model := &FileModel{Path: path}
	model.Entities = append(model.Entities, &EntityRecord{
		ID:           moduleID,
		Name:         moduleName,
		Kind:         storage.KindModule,
		Visibility:   detectVisibility(moduleName),
		LineStart:    0,
		LineEnd:      int(root.EndPoint().Row),
		Docstring:    blockDocstring(root, content),
		SemanticType: semanticTypeFor(storage.KindModule, moduleName),
	})

	w := &fileWalker{source: content, model: model}
	w.walkChildren(root, moduleID, false)

	return model, nil
}

// fileWalker carries the per-file extraction state through the AST walk
type fileWalker struct {
	source []byte
	model  *FileModel
}

func (w *fileWalker) walkChildren(node *sitter.Node, ownerID string, inClass bool) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, ownerID, inClass, nil)
		}
	}
}

func (w *fileWalker) walk(node *sitter.Node, ownerID string, inClass bool, decorators []string) {
	switch node.Type() {
	case "decorated_definition":
		var decs []string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child != nil && child.Type() == "decorator" {
				decs = append(decs, decoratorName(child, w.source))
			}
		}
		if def := node.ChildByFieldName("definition"); def != nil {
			w.walk(def, ownerID, inClass, decs)
		}

	case "class_definition":
		w.addClass(node, ownerID)

	case "function_definition":
		w.addFunction(node, ownerID, inClass, decorators)

	case "import_statement", "import_from_statement":
		w.addImports(node, ownerID)

	case "call":
		w.addCall(node, ownerID)
		w.walkChildren(node, ownerID, inClass)

	default:
		w.walkChildren(node, ownerID, inClass)
	}
}

func (w *fileWalker) addClass(node *sitter.Node, parentID string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, w.source)
	classID := uuid.NewString()

	w.model.Entities = append(w.model.Entities, &EntityRecord{
		ID:           classID,
		Name:         name,
		Kind:         storage.KindClass,
		Visibility:   detectVisibility(name),
		ParentID:     &parentID,
		LineStart:    int(node.StartPoint().Row),
		LineEnd:      int(node.EndPoint().Row),
		Docstring:    bodyDocstring(node, w.source),
		Signature:    headerSignature(node, w.source),
		SemanticType: semanticTypeFor(storage.KindClass, name),
	})

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			super := supers.NamedChild(i)
			if super == nil {
				continue
			}
			target := referencedName(super, w.source)
			if target == "" {
				continue
			}
			line := int(super.StartPoint().Row)
			character := int(super.StartPoint().Column)
			w.model.Intents = append(w.model.Intents, &RelationIntent{
				FromID:     classID,
				TargetName: target,
				RelType:    storage.RelInherits,
				Line:       &line,
				Character:  &character,
			})
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		w.walkChildren(body, classID, true)
	}
}

func (w *fileWalker) addFunction(node *sitter.Node, parentID string, inClass bool, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, w.source)
	funcID := uuid.NewString()

	kind := storage.KindFunction
	var methodKind *string
	if inClass {
		kind = storage.KindMethod
		mk := methodKindFromDecorators(decorators)
		methodKind = &mk
	}

	w.model.Entities = append(w.model.Entities, &EntityRecord{
		ID:           funcID,
		Name:         name,
		Kind:         kind,
		Visibility:   detectVisibility(name),
		ParentID:     &parentID,
		LineStart:    int(node.StartPoint().Row),
		LineEnd:      int(node.EndPoint().Row),
		Docstring:    bodyDocstring(node, w.source),
		Signature:    headerSignature(node, w.source),
		SemanticType: semanticTypeFor(kind, name),
		MethodKind:   methodKind,
	})

	if body := node.ChildByFieldName("body"); body != nil {
		// Calls inside the body belong to this function, not its class
		w.walkChildren(body, funcID, false)
	}
}

// addCall records a call site at the exact coordinates of the referenced
// name token, so the semantic pass can query a definition there.
func (w *fileWalker) addCall(node *sitter.Node, ownerID string) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	var nameNode *sitter.Node
	switch fn.Type() {
	case "identifier":
		nameNode = fn
	case "attribute":
		nameNode = fn.ChildByFieldName("attribute")
	}
	if nameNode == nil {
		return
	}

	name := nodeText(nameNode, w.source)
	if name == "" {
		return
	}

	line := int(nameNode.StartPoint().Row)
	character := int(nameNode.StartPoint().Column)
	w.model.Intents = append(w.model.Intents, &RelationIntent{
		FromID:     ownerID,
		TargetName: name,
		RelType:    storage.RelCalls,
		Line:       &line,
		Character:  &character,
	})
}

func (w *fileWalker) addImports(node *sitter.Node, ownerID string) {
	addIntent := func(target string, at *sitter.Node) {
		if target == "" {
			return
		}
		line := int(at.StartPoint().Row)
		character := int(at.StartPoint().Column)
		w.model.Intents = append(w.model.Intents, &RelationIntent{
			FromID:     ownerID,
			TargetName: target,
			RelType:    storage.RelImports,
			Line:       &line,
			Character:  &character,
		})
	}

	if node.Type() == "import_statement" {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "dotted_name":
				addIntent(nodeText(child, w.source), child)
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					addIntent(nodeText(name, w.source), name)
				}
			}
		}
		return
	}

	// from X import a, b: each imported name is its own reference; the
	// module itself is not recorded separately
	moduleName := node.ChildByFieldName("module_name")
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child == moduleName {
			continue
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			addIntent(nodeText(child, w.source), child)
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				addIntent(nodeText(name, w.source), name)
			}
		}
	}
}

// referencedName reduces a reference expression to its final name token:
// "base.Cls" yields "Cls", a bare identifier yields itself.
func referencedName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, source)
	case "attribute":
		if attr := node.ChildByFieldName("attribute"); attr != nil {
			return nodeText(attr, source)
		}
	}
	return ""
}

// decoratorName strips the "@" and any call arguments from a decorator
func decoratorName(node *sitter.Node, source []byte) string {
	text := strings.TrimPrefix(nodeText(node, source), "@")
	if idx := strings.IndexByte(text, '('); idx >= 0 {
		text = text[:idx]
	}
	// property.setter and friends reduce to their base name
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// headerSignature returns the declaration header: everything from the
// definition keyword up to the body
func headerSignature(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	header := string(source[node.StartByte():body.StartByte()])
	return strings.TrimSuffix(strings.TrimSpace(header), ":")
}

// bodyDocstring returns the raw leading string literal of a definition's
// body, if any
func bodyDocstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	return blockDocstring(body, source)
}

// blockDocstring reads a docstring from the first statement of a block
func blockDocstring(block *sitter.Node, source []byte) string {
	if block.NamedChildCount() == 0 {
		return ""
	}
	first := block.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" {
		return ""
	}
	if first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}
	return stripQuotes(nodeText(str, source))
}

// stripQuotes removes Python string literal quoting from a docstring
func stripQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}
