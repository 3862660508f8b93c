package extract

import "strings"

// Semantic types generalize source-language spellings into language-neutral
// categories. Dunder methods map to what they mean, not what they are named.
var dunderSemanticTypes = map[string]string{
	"__init__":     "Constructor",
	"__new__":      "Constructor",
	"__str__":      "Display",
	"__repr__":     "Display",
	"__eq__":       "Equality",
	"__ne__":       "Equality",
	"__hash__":     "Equality",
	"__lt__":       "Comparison",
	"__le__":       "Comparison",
	"__gt__":       "Comparison",
	"__ge__":       "Comparison",
	"__len__":      "Collection",
	"__getitem__":  "Collection",
	"__setitem__":  "Collection",
	"__delitem__":  "Collection",
	"__iter__":     "Collection",
	"__contains__": "Collection",
	"__enter__":    "Context",
	"__exit__":     "Context",
	"__call__":     "Callable",
	"__del__":      "Destructor",
}

// Method kinds
const (
	MethodKindStatic   = "static"
	MethodKindClass    = "class"
	MethodKindInstance = "instance"
)

// detectVisibility derives visibility from naming convention. Dunder names
// are the language-level interface and stay public; a single leading
// underscore marks private.
func detectVisibility(name string) string {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return "public"
	}
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	return "public"
}

// semanticTypeFor maps an entity to its normalized semantic type
func semanticTypeFor(kind, name string) string {
	switch kind {
	case "module":
		return "Module"
	case "class":
		return "Class"
	case "function":
		return "Function"
	case "method":
		if t, ok := dunderSemanticTypes[name]; ok {
			return t
		}
		return "Method"
	default:
		return "Function"
	}
}

// methodKindFromDecorators classifies a method as static, class, or
// instance based on its decorators.
func methodKindFromDecorators(decorators []string) string {
	for _, d := range decorators {
		switch d {
		case "staticmethod":
			return MethodKindStatic
		case "classmethod":
			return MethodKindClass
		}
	}
	return MethodKindInstance
}
