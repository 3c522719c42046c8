package segment

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec holds the tree-sitter grammar and capture query for one
// language. Query must capture the outer declaration node as @chunk and,
// optionally, its identifier as @name.
type LanguageSpec struct {
	Language *sitter.Language
	Query    string
}

// Registry maps language names to structural splitters. Languages without a
// registered grammar fall back to the sliding-window splitter.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*LanguageSpec)}
}

// Register adds a language spec under the given language name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[name] = spec
}

// Lookup returns the spec for a language, or nil when none is registered.
func (r *Registry) Lookup(language string) *LanguageSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[language]
}

// Languages returns the names of all registered languages.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
