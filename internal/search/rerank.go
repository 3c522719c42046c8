package search

import (
	"regexp"
	"sort"
	"strings"

	"repolens/pkg/models"
)

// Weights is the re-ranking signal mix. SimilarityWeight must stay positive:
// the final score is then monotonic in the raw similarity for fixed
// secondary signals.
type Weights struct {
	Similarity float64
	Lexical    float64
	Kind       float64
}

// DefaultWeights returns the standard signal mix.
func DefaultWeights() Weights {
	return Weights{Similarity: 0.8, Lexical: 0.15, Kind: 0.05}
}

// Reranker rescales raw similarity with lexical term overlap and a
// chunk-kind prior, producing a strictly ordered candidate list.
type Reranker struct {
	weights Weights
}

// NewReranker creates a reranker with the given weights.
func NewReranker(w Weights) *Reranker {
	return &Reranker{weights: w}
}

var termPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Rerank assigns final scores and sorts descending. Ties are broken by
// (path, start line) ascending so results are reproducible across runs.
func (r *Reranker) Rerank(query string, candidates []models.Candidate) []models.Candidate {
	queryTerms := terms(query)

	out := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		c.FinalScore = r.weights.Similarity*c.RawScore +
			r.weights.Lexical*overlapScore(queryTerms, c.Chunk.Content) +
			r.weights.Kind*kindBoost(c.Chunk.Kind)
		out[i] = c
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].Chunk.Path != out[j].Chunk.Path {
			return out[i].Chunk.Path < out[j].Chunk.Path
		}
		return out[i].Chunk.StartLine < out[j].Chunk.StartLine
	})
	return out
}

// terms lowercases and tokenizes text into its distinct alphanumeric terms.
func terms(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range termPattern.FindAllString(strings.ToLower(text), -1) {
		set[t] = true
	}
	return set
}

// overlapScore is the fraction of query terms that appear in the chunk text,
// in [0,1].
func overlapScore(queryTerms map[string]bool, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := terms(content)
	hits := 0
	for t := range queryTerms {
		if contentTerms[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// kindBoost favors named declarations over generic window chunks.
func kindBoost(kind models.ChunkKind) float64 {
	switch kind {
	case models.KindFunction, models.KindType:
		return 1.0
	case models.KindBlock:
		return 0.5
	default:
		return 0.25
	}
}
