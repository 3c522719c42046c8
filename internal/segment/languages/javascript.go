package languages

import (
	"repolens/internal/segment"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *segment.Registry) {
	r.Register("javascript", &segment.LanguageSpec{
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
	})
}
