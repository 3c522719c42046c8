package search

import (
	"context"

	"repolens/internal/ai"
	"repolens/internal/store"
	"repolens/pkg/models"
)

// Service composes the query path: retrieve, re-rank, stitch.
type Service struct {
	Retriever *Retriever
	Reranker  *Reranker
	Stitcher  *Stitcher
}

// NewService creates a query service over the given client and store.
func NewService(client ai.Client, st store.ChunkStore, w Weights, maxGap int) *Service {
	return &Service{
		Retriever: NewRetriever(client, st),
		Reranker:  NewReranker(w),
		Stitcher:  NewStitcher(maxGap),
	}
}

// Query answers a natural-language question with stitched context blocks.
// Retrieval failures propagate directly; the re-ranker and stitcher are
// never invoked on a failed retrieval.
func (s *Service) Query(ctx context.Context, query string, k int, f store.Filters) ([]models.Block, error) {
	candidates, err := s.Retriever.Search(ctx, query, k, f)
	if err != nil {
		return nil, err
	}
	ranked := s.Reranker.Rerank(query, candidates)
	return s.Stitcher.Stitch(ranked), nil
}
