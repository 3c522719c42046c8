package search

import (
	"sort"
	"strings"

	"repolens/pkg/models"
)

// Stitcher merges overlapping or near-adjacent retrieved chunks per file
// into minimal contiguous blocks. Raw top-K retrieval over overlapping
// chunks would otherwise hand the consumer redundant, fragmented context.
type Stitcher struct {
	MaxGap int // largest line gap bridged between two chunks of one file
}

// NewStitcher creates a stitcher bridging gaps up to maxGap lines.
func NewStitcher(maxGap int) *Stitcher {
	if maxGap < 0 {
		maxGap = 0
	}
	return &Stitcher{MaxGap: maxGap}
}

// Stitch groups ranked candidates by file, merges ranges that overlap or sit
// within MaxGap lines of each other, and orders the resulting blocks by the
// best final score of any contributing candidate, descending. No two blocks
// of the same file overlap.
func (s *Stitcher) Stitch(ranked []models.Candidate) []models.Block {
	byFile := make(map[string][]models.Candidate)
	for _, c := range ranked {
		byFile[c.Chunk.Path] = append(byFile[c.Chunk.Path], c)
	}

	var blocks []models.Block
	for path, cands := range byFile {
		blocks = append(blocks, s.stitchFile(path, cands)...)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Score != blocks[j].Score {
			return blocks[i].Score > blocks[j].Score
		}
		if blocks[i].Path != blocks[j].Path {
			return blocks[i].Path < blocks[j].Path
		}
		return blocks[i].StartLine < blocks[j].StartLine
	})
	return blocks
}

// stitchFile merges one file's candidate ranges in line order.
func (s *Stitcher) stitchFile(path string, cands []models.Candidate) []models.Block {
	sorted := make([]models.Candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Chunk.StartLine != sorted[j].Chunk.StartLine {
			return sorted[i].Chunk.StartLine < sorted[j].Chunk.StartLine
		}
		return sorted[i].Chunk.EndLine < sorted[j].Chunk.EndLine
	})

	var blocks []models.Block
	var members []models.Candidate
	cur := models.Block{Path: path, StartLine: sorted[0].Chunk.StartLine, EndLine: sorted[0].Chunk.EndLine, Score: sorted[0].FinalScore}
	members = []models.Candidate{sorted[0]}

	flush := func() {
		cur.Content = assemble(cur.StartLine, cur.EndLine, members)
		blocks = append(blocks, cur)
	}

	for _, c := range sorted[1:] {
		if c.Chunk.StartLine <= cur.EndLine+s.MaxGap+1 {
			if c.Chunk.EndLine > cur.EndLine {
				cur.EndLine = c.Chunk.EndLine
			}
			if c.FinalScore > cur.Score {
				cur.Score = c.FinalScore
			}
			members = append(members, c)
			continue
		}
		flush()
		cur = models.Block{Path: path, StartLine: c.Chunk.StartLine, EndLine: c.Chunk.EndLine, Score: c.FinalScore}
		members = []models.Candidate{c}
	}
	flush()
	return blocks
}

// assemble reconstructs the block's text from its members' line spans. Lines
// covered by more than one chunk are taken once; bridged gap lines that no
// chunk carries stay empty.
func assemble(start, end int, members []models.Candidate) string {
	lines := make([]string, end-start+1)
	for _, m := range members {
		content := strings.Split(m.Chunk.Content, "\n")
		for i, l := range content {
			pos := m.Chunk.StartLine + i - start
			if pos >= 0 && pos < len(lines) {
				lines[pos] = l
			}
		}
	}
	return strings.Join(lines, "\n")
}
