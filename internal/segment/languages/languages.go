package languages

import "repolens/internal/segment"

// RegisterAll registers every bundled grammar.
func RegisterAll(r *segment.Registry) {
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
}
