package ingest

import (
	"context"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"repolens/internal/embed"
	"repolens/internal/segment"
	"repolens/internal/snapshot"
	"repolens/internal/store"
	"repolens/pkg/models"
)

const upsertBatchSize = 100

// Ingestor drives the ingestion path: snapshot files through the segmenter,
// the embedding orchestrator, and finally the index writer.
type Ingestor struct {
	Segmenter    *segment.Segmenter
	Orchestrator *embed.Orchestrator
	Store        store.ChunkStore
	Workers      int // segmentation pool size; defaults to CPU count, capped at 8
}

// Summary reports what one ingestion run did. Per-file and per-chunk
// failures are recovered locally and aggregated here; they never abort the
// run.
type Summary struct {
	Revision       string
	AlreadyIndexed bool
	FilesTotal     int
	FilesSkipped   int
	ChunksTotal    int
	ChunksIndexed  int
	ChunksFailed   int
	Embed          embed.Report
}

// Run ingests a snapshot. A vector-store write failure aborts the current
// upsert batch and surfaces the error; batches committed before it remain
// valid, and re-running is safe because upserts are idempotent and the
// embedding cache is content-addressed.
func (in *Ingestor) Run(ctx context.Context, snap *models.Snapshot) (*Summary, error) {
	sum := &Summary{Revision: snap.Revision, FilesTotal: len(snap.Files)}

	done, err := in.Store.IsRevisionIndexed(ctx, snap.Revision)
	if err != nil {
		return sum, err
	}
	if done {
		log.Info().Str("revision", snap.Revision).Msg("revision already indexed, nothing to do")
		sum.AlreadyIndexed = true
		return sum, nil
	}

	chunks, skipped, err := in.segmentAll(ctx, snap)
	if err != nil {
		return sum, err
	}
	sum.FilesSkipped = skipped
	sum.ChunksTotal = len(chunks)

	embedded, report, err := in.Orchestrator.Run(ctx, chunks)
	if err != nil {
		return sum, err
	}
	sum.Embed = report
	sum.ChunksFailed = report.Failed

	for start := 0; start < len(embedded); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(embedded) {
			end = len(embedded)
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		batch := make([]models.Chunk, 0, end-start)
		for _, ch := range embedded[start:end] {
			if ch.Failed {
				continue
			}
			batch = append(batch, ch)
		}
		if len(batch) == 0 {
			continue
		}
		if err := in.Store.UpsertBatch(ctx, batch); err != nil {
			log.Error().Err(err).Int("batch_size", len(batch)).Msg("batch upsert failed, aborting run")
			return sum, err
		}
		sum.ChunksIndexed += len(batch)
	}

	// A revision with failed chunks stays unmarked so the next run retries
	// them instead of skipping the snapshot.
	if sum.ChunksFailed == 0 {
		if err := in.Store.MarkRevisionIndexed(ctx, snap.Revision); err != nil {
			return sum, err
		}
	}

	log.Info().
		Str("revision", snap.Revision).
		Int("files", sum.FilesTotal).
		Int("files_skipped", sum.FilesSkipped).
		Int("chunks", sum.ChunksTotal).
		Int("chunks_indexed", sum.ChunksIndexed).
		Int("chunks_failed", sum.ChunksFailed).
		Int("provider_calls", report.ProviderCalls).
		Msg("ingestion complete")

	return sum, nil
}

// segmentAll runs the segmenter over snapshot files in parallel. Chunk order
// within a file is deterministic; file order follows the snapshot.
func (in *Ingestor) segmentAll(ctx context.Context, snap *models.Snapshot) ([]models.Chunk, int, error) {
	workers := in.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}

	perFile := make([][]models.Chunk, len(snap.Files))
	skipped := make([]bool, len(snap.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range snap.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lang := snapshot.DetectLanguage(f.Path)
			chunks, err := in.Segmenter.File(f.Path, lang, f.Content)
			if err != nil {
				// Malformed file: skip it, keep the run going.
				log.Warn().Err(err).Str("path", f.Path).Msg("segmentation failed, skipping file")
				skipped[i] = true
				return nil
			}
			perFile[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var out []models.Chunk
	var nSkipped int
	for i, chunks := range perFile {
		if skipped[i] {
			nSkipped++
			continue
		}
		out = append(out, chunks...)
	}
	return out, nSkipped, nil
}
