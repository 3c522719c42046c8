package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/pkg/models"
)

func candidate(path string, start int, kind models.ChunkKind, content string, raw float64) models.Candidate {
	return models.Candidate{
		Chunk: models.Chunk{
			Path:      path,
			StartLine: start,
			EndLine:   start + 9,
			Kind:      kind,
			Content:   content,
		},
		RawScore: raw,
	}
}

func TestRerank_MonotonicInRawScore(t *testing.T) {
	r := NewReranker(DefaultWeights())

	ranked := r.Rerank("token refresh", []models.Candidate{
		candidate("a.go", 1, models.KindFunction, "func refresh() {}", 0.5),
		candidate("b.go", 1, models.KindFunction, "func refresh() {}", 0.9),
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, "b.go", ranked[0].Chunk.Path)
	assert.Greater(t, ranked[0].FinalScore, ranked[1].FinalScore)
}

func TestRerank_LexicalOverlapBoosts(t *testing.T) {
	r := NewReranker(DefaultWeights())

	ranked := r.Rerank("parse config file", []models.Candidate{
		candidate("unrelated.go", 1, models.KindBlock, "var x = 1", 0.7),
		candidate("config.go", 1, models.KindBlock, "func parse(config, file string)", 0.7),
	})

	assert.Equal(t, "config.go", ranked[0].Chunk.Path)
}

func TestRerank_KindPriorFavorsDeclarations(t *testing.T) {
	r := NewReranker(DefaultWeights())

	ranked := r.Rerank("anything", []models.Candidate{
		candidate("file.go", 1, models.KindFile, "same text", 0.7),
		candidate("func.go", 1, models.KindFunction, "same text", 0.7),
	})

	assert.Equal(t, "func.go", ranked[0].Chunk.Path)
}

func TestRerank_TieBreakByPathThenLine(t *testing.T) {
	r := NewReranker(DefaultWeights())

	ranked := r.Rerank("q", []models.Candidate{
		candidate("b.go", 1, models.KindFunction, "same", 0.5),
		candidate("a.go", 40, models.KindFunction, "same", 0.5),
		candidate("a.go", 10, models.KindFunction, "same", 0.5),
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, "a.go", ranked[0].Chunk.Path)
	assert.Equal(t, 10, ranked[0].Chunk.StartLine)
	assert.Equal(t, 40, ranked[1].Chunk.StartLine)
	assert.Equal(t, "b.go", ranked[2].Chunk.Path)
}

func TestRerank_EmptyInput(t *testing.T) {
	r := NewReranker(DefaultWeights())
	assert.Empty(t, r.Rerank("q", nil))
}
