package segment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"repolens/pkg/models"
)

// TokensPerChar is the heuristic for estimating tokens (chars/4).
const TokensPerChar = 4

// Segmenter splits file text into ordered, gap-free chunks. Splitting is a
// pure function of (text, language, configuration): the same input always
// yields the same chunk sequence.
type Segmenter struct {
	registry  *Registry
	maxTokens int
	overlap   int
}

// New creates a Segmenter with the given structural registry, token budget
// per chunk and sliding-window overlap in lines.
func New(registry *Registry, maxTokens, overlap int) *Segmenter {
	return &Segmenter{registry: registry, maxTokens: maxTokens, overlap: overlap}
}

// piece is a half-built chunk: a line span plus its kind.
type piece struct {
	start, end int
	kind       models.ChunkKind
}

// span is a structural declaration located by tree-sitter.
type span struct {
	start, end int
	kind       models.ChunkKind
}

// File segments a file's text. Structural boundaries are used when a grammar
// is registered for the language; the regions between declarations are
// window-split so the sequence covers every line of the file. Without a
// grammar the whole file goes through a sliding line window with the
// configured overlap. An empty file yields zero chunks.
func (s *Segmenter) File(path, language, text string) ([]models.Chunk, error) {
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	cum := cumulate(lines)

	var spans []span
	spec := s.registry.Lookup(language)
	if spec != nil {
		var err error
		spans, err = structuralSpans(spec, []byte(text), len(lines))
		if err != nil {
			return nil, &models.SegmentationError{Path: path, Err: err}
		}
	}

	var pieces []piece
	if len(spans) == 0 {
		pieces = s.windowPieces(cum, 1, len(lines), s.overlap, models.KindBlock)
		if spec == nil && len(pieces) == 1 {
			pieces[0].kind = models.KindFile
		}
	} else {
		pieces = s.coverPieces(lines, cum, spans)
	}
	pieces = mergeBlankPieces(pieces, lines)

	return materialize(path, language, lines, pieces), nil
}

// coverPieces walks the file start to end, emitting declaration spans as
// structural chunks and window-splitting the gaps between them, so coverage
// stays gap-free.
func (s *Segmenter) coverPieces(lines []string, cum []int, spans []span) []piece {
	var pieces []piece
	pos := 1
	for _, sp := range spans {
		if sp.end < pos {
			continue
		}
		if sp.start > pos {
			pieces = append(pieces, s.windowPieces(cum, pos, sp.start-1, 0, models.KindBlock)...)
		}
		start := sp.start
		if start < pos {
			start = pos
		}
		if s.tokens(cum, start, sp.end) <= s.maxTokens {
			pieces = append(pieces, piece{start: start, end: sp.end, kind: sp.kind})
		} else {
			pieces = append(pieces, s.splitUnit(lines, cum, start, sp.end, sp.kind)...)
		}
		pos = sp.end + 1
	}
	if pos <= len(lines) {
		pieces = append(pieces, s.windowPieces(cum, pos, len(lines), 0, models.KindBlock)...)
	}
	return pieces
}

// windowPieces slides a token-budgeted window over [lo,hi]. Consecutive
// windows share overlap lines; the window always advances by at least one
// line so termination does not depend on line lengths.
func (s *Segmenter) windowPieces(cum []int, lo, hi, overlap int, kind models.ChunkKind) []piece {
	var out []piece
	start := lo
	for {
		end := start
		for end < hi && s.tokens(cum, start, end+1) <= s.maxTokens {
			end++
		}
		out = append(out, piece{start: start, end: end, kind: kind})
		if end >= hi {
			return out
		}
		next := end - overlap + 1
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// splitUnit splits an oversized structural unit, preferring blank-line
// boundaries and falling back to a hard cut at the budget edge. After a cut
// the scan restarts at the residual span, so every emitted piece is checked
// against the budget; only a single line larger than the budget can exceed
// it.
func (s *Segmenter) splitUnit(lines []string, cum []int, lo, hi int, kind models.ChunkKind) []piece {
	var out []piece
	start := lo
	lastBlank := 0
	i := lo
	for i <= hi {
		if i > start && s.tokens(cum, start, i) > s.maxTokens {
			cut := i - 1
			if lastBlank >= start && lastBlank < i {
				cut = lastBlank
			}
			out = append(out, piece{start: start, end: cut, kind: kind})
			start = cut + 1
			continue
		}
		if strings.TrimSpace(lines[i-1]) == "" {
			lastBlank = i
		}
		i++
	}
	out = append(out, piece{start: start, end: hi, kind: kind})
	return out
}

// tokens estimates the token count of lines [lo,hi] joined by newlines.
func (s *Segmenter) tokens(cum []int, lo, hi int) int {
	return (cum[hi] - cum[lo-1] - 1) / TokensPerChar
}

// cumulate returns prefix sums of line lengths including a newline per line,
// so span sizes are O(1).
func cumulate(lines []string) []int {
	cum := make([]int, len(lines)+1)
	for i, l := range lines {
		cum[i+1] = cum[i] + len(l) + 1
	}
	return cum
}

// structuralSpans parses the source and returns the ordered, de-overlapped
// declaration spans captured by the language query.
func structuralSpans(spec *LanguageSpec, src []byte, lineCount int) ([]span, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var spans []span
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, cap := range m.Captures {
			if q.CaptureNameForId(cap.Index) != "chunk" {
				continue
			}
			st := int(cap.Node.StartPoint().Row) + 1
			en := int(cap.Node.EndPoint().Row) + 1
			if en > lineCount {
				en = lineCount
			}
			spans = append(spans, span{start: st, end: en, kind: kindOf(cap.Node.Type())})
		}
	}

	// Sort by start line, larger node first, then drop spans nested inside
	// or overlapping an earlier one.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	var out []span
	lastEnd := 0
	for _, sp := range spans {
		if sp.start <= lastEnd {
			continue
		}
		out = append(out, sp)
		lastEnd = sp.end
	}
	return out, nil
}

// kindOf maps a tree-sitter node type to a chunk kind.
func kindOf(nodeType string) models.ChunkKind {
	switch {
	case strings.Contains(nodeType, "function"), strings.Contains(nodeType, "method"):
		return models.KindFunction
	case strings.Contains(nodeType, "class"), strings.Contains(nodeType, "type"),
		strings.Contains(nodeType, "interface"):
		return models.KindType
	default:
		return models.KindBlock
	}
}

// mergeBlankPieces folds pieces that contain only blank lines into their
// neighbor, so whitespace runs between declarations never become chunks of
// their own.
func mergeBlankPieces(pieces []piece, lines []string) []piece {
	if len(pieces) <= 1 {
		return pieces
	}
	blank := func(p piece) bool {
		for i := p.start; i <= p.end; i++ {
			if strings.TrimSpace(lines[i-1]) != "" {
				return false
			}
		}
		return true
	}
	out := pieces[:0]
	for _, p := range pieces {
		if len(out) > 0 && blank(p) && out[len(out)-1].end == p.start-1 {
			out[len(out)-1].end = p.end
			continue
		}
		if len(out) > 0 && blank(out[len(out)-1]) && out[len(out)-1].end == p.start-1 {
			p.start = out[len(out)-1].start
			out = out[:len(out)-1]
		}
		out = append(out, p)
	}
	return out
}

// materialize turns pieces into chunks, recording content, hash, token count
// and the shared-line overlap between neighbors.
func materialize(path, language string, lines []string, pieces []piece) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(pieces))
	prevEnd := 0
	for i, p := range pieces {
		overlap := 0
		if prevEnd >= p.start {
			overlap = prevEnd - p.start + 1
		}
		content := strings.Join(lines[p.start-1:p.end], "\n")
		chunks = append(chunks, models.Chunk{
			Path:          path,
			StartLine:     p.start,
			EndLine:       p.end,
			Language:      language,
			Kind:          p.kind,
			ContentHash:   HashContent(content),
			TokenCount:    len(content) / TokensPerChar,
			OverlapPrefix: overlap,
			Content:       content,
		})
		if i > 0 {
			chunks[i-1].OverlapSuffix = overlap
		}
		prevEnd = p.end
	}
	return chunks
}

// HashContent returns the content fingerprint of exact chunk text: identical
// text anywhere in the snapshot hashes identically and is embedded at most
// once per run.
func HashContent(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
