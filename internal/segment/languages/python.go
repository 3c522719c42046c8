package languages

import (
	"repolens/internal/segment"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *segment.Registry) {
	r.Register("python", &segment.LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
	})
}
