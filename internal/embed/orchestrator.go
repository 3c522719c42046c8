package embed

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"repolens/internal/ai"
	"repolens/internal/cache"
	"repolens/pkg/models"
)

// Orchestrator embeds chunks in fixed-size batches under a bounded worker
// pool. Distinct content is embedded at most once per run: batches are built
// from unique fingerprints, and every success is written through the cache
// before annotation.
type Orchestrator struct {
	client    ai.Client
	cache     *cache.EmbeddingCache
	batchSize int
	workers   int
	retry     RetryConfig
}

// Report summarizes one orchestrator run.
type Report struct {
	Embedded      int // chunks annotated from fresh provider results
	CacheHits     int // chunks served from the cache
	Failed        int // chunks whose content could not be embedded
	ProviderCalls int // successful or exhausted provider round trips
}

// New creates an orchestrator. batchSize and workers must be positive;
// config validation enforces that before we get here.
func New(client ai.Client, c *cache.EmbeddingCache, batchSize, workers int, retry RetryConfig) *Orchestrator {
	return &Orchestrator{
		client:    client,
		cache:     c,
		batchSize: batchSize,
		workers:   workers,
		retry:     retry,
	}
}

// Run annotates chunks with embeddings. Chunks whose content cannot be
// embedded after the retry ceiling are marked failed; the run itself only
// errors on cancellation.
func (o *Orchestrator) Run(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, Report, error) {
	var report Report

	// One embedding per distinct fingerprint: identical license headers or
	// generated boilerplate across files collapse to a single provider text.
	pending := make(map[string]string)
	var order []string
	for _, ch := range chunks {
		if _, ok := o.cache.Lookup(ch.ContentHash); ok {
			continue
		}
		if _, ok := pending[ch.ContentHash]; ok {
			continue
		}
		pending[ch.ContentHash] = ch.Content
		order = append(order, ch.ContentHash)
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for start := 0; start < len(order); start += o.batchSize {
		end := start + o.batchSize
		if end > len(order) {
			end = len(order)
		}
		hashes := order[start:end]

		g.Go(func() error {
			texts := make([]string, len(hashes))
			for i, h := range hashes {
				texts[i] = pending[h]
			}

			vectors, err := retryWithBackoff(gctx, o.retry, func() ([][]float32, error) {
				return o.client.EmbedBatch(gctx, texts)
			})

			mu.Lock()
			report.ProviderCalls++
			mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				provErr := &models.EmbeddingProviderError{Attempts: o.retry.MaxAttempts, Err: err}
				log.Warn().Err(provErr).Int("batch_size", len(hashes)).Msg("embedding batch failed, marking chunks failed")
				return nil
			}

			if len(vectors) != len(hashes) {
				log.Warn().Int("got", len(vectors)).Int("want", len(hashes)).Msg("provider returned short batch, marking chunks failed")
				return nil
			}

			for i, h := range hashes {
				o.cache.Store(h, vectors[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, report, err
	}
	// Results computed before a late cancellation are discarded by the
	// caller; re-running is safe because the cache is content-addressed.
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out := make([]models.Chunk, len(chunks))
	for i, ch := range chunks {
		if vec, ok := o.cache.Lookup(ch.ContentHash); ok {
			ch.Embedding = vec
			if _, wasPending := pending[ch.ContentHash]; wasPending {
				report.Embedded++
			} else {
				report.CacheHits++
			}
		} else {
			ch.Failed = true
			report.Failed++
		}
		out[i] = ch
	}
	return out, report, nil
}
