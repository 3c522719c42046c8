package languages

import (
	"repolens/internal/segment"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *segment.Registry) {
	r.Register("go", &segment.LanguageSpec{
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(method_declaration name: (field_identifier) @name) @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
		`,
	})
}
