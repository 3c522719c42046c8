package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"repolens/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Builder produces a repository snapshot from a directory tree: the ordered
// file list plus a revision marker. It is the only acquisition surface the
// pipeline consumes.
type Builder struct {
	Walker     FileSystemWalker
	FileReader FileReader
}

// NewBuilder creates a Builder backed by the real filesystem.
func NewBuilder() *Builder {
	return &Builder{
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// FromDir walks root in lexical order and returns a snapshot of its text
// files. Binary files and generated/vendored trees are excluded here, before
// the segmenter ever sees them.
func (b *Builder) FromDir(root string) (*models.Snapshot, error) {
	var files []models.File

	err := b.Walker.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if shouldSkip(path) {
				return nil
			}

			raw, err := b.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}
			if isBinary(raw) {
				return nil
			}

			files = append(files, models.File{
				Path:    rel(root, path),
				Content: string(raw),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &models.Snapshot{
		Revision: revision(root, files),
		Files:    files,
	}, nil
}

// revision prefers the checked-out git commit; a tree without git history
// gets a digest of its file contents instead, so re-running over unchanged
// input maps to the same snapshot identity.
func revision(root string, files []models.File) string {
	out, err := exec.Command("git", "-C", root, "rev-parse", "HEAD").Output()
	if err == nil {
		if rev := strings.TrimSpace(string(out)); rev != "" {
			return rev
		}
	}

	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Content))
		h.Write([]byte{0})
	}
	return "dir-" + hex.EncodeToString(h.Sum(nil))[:40]
}

// isBinary applies a NUL-byte probe over the file head.
func isBinary(raw []byte) bool {
	probe := raw
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// shouldSkip returns true if the file at path should be skipped.
func shouldSkip(path string) bool {
	p := strings.ToLower(path)
	if strings.Contains(p, "/vendor/") ||
		strings.Contains(p, "/.git/") ||
		strings.Contains(p, "/.terraform/") ||
		strings.Contains(p, "/node_modules/") ||
		strings.Contains(p, "/target/") ||
		strings.Contains(p, "/build/") ||
		strings.Contains(p, "/dist/") ||
		strings.Contains(p, "/out/") ||
		strings.Contains(p, "/bin/") ||
		strings.Contains(p, "/obj/") ||
		strings.Contains(p, "/.venv/") ||
		strings.Contains(p, "/venv/") ||
		strings.Contains(p, "/__pycache__/") ||
		strings.Contains(p, "/.pytest_cache/") ||
		strings.Contains(p, "/.gradle/") ||
		strings.Contains(p, "/.idea/") ||
		strings.Contains(p, "/coverage/") ||
		strings.Contains(p, "/.cache/") {
		return true
	}
	switch filepath.Ext(p) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".webp", ".lock", ".zip", ".svg", ".exe", ".dll", ".sum", ".ico", ".woff", ".woff2":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}

// DetectLanguage guesses the language tag from the file extension; "unknown"
// when the extension is unrecognized.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".sh", ".bash":
		return "shell"
	case ".py", ".pyi":
		return "python"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".md":
		return "markdown"
	case ".tf":
		return "terraform"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case "":
		return "unknown"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
