package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"repolens/internal/ai"
	"repolens/internal/cache"
	"repolens/internal/config"
	"repolens/internal/embed"
	"repolens/internal/ingest"
	"repolens/internal/segment"
	"repolens/internal/segment/languages"
	"repolens/internal/snapshot"
	"repolens/internal/store"
)

func main() {
	fs := pflag.NewFlagSet("repolens-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ai.NewClient(ctx, clientConfig(&cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedding client")
	}
	if client.Dim() == 0 {
		log.Fatal().Msg("embedding dimension must be set")
	}

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.Close()

	if err := st.Migrate(ctx, client.Dim()); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	snap, err := snapshot.NewBuilder().FromDir(cfg.RepoRoot)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.RepoRoot).Msg("snapshot failed")
	}
	log.Info().Str("revision", snap.Revision).Int("files", len(snap.Files)).Msg("snapshot built")

	registry := segment.NewRegistry()
	languages.RegisterAll(registry)

	ingestor := &ingest.Ingestor{
		Segmenter: segment.New(registry, cfg.Chunking.MaxChunkTokens, cfg.Chunking.OverlapLines),
		Orchestrator: embed.New(client, cache.New(), cfg.Embedding.BatchSize, cfg.Embedding.Workers, embed.RetryConfig{
			MaxAttempts: cfg.Embedding.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Embedding.BackoffMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Embedding.MaxDelayMs) * time.Millisecond,
			Multiplier:  2.0,
		}),
		Store: st,
	}

	sum, err := ingestor.Run(ctx, snap)
	if err != nil {
		log.Fatal().Err(err).
			Int("chunks_indexed", sum.ChunksIndexed).
			Msg("ingestion aborted; committed batches remain valid")
	}
	if sum.ChunksFailed > 0 || sum.FilesSkipped > 0 {
		log.Warn().
			Int("files_skipped", sum.FilesSkipped).
			Int("chunks_failed", sum.ChunksFailed).
			Msg("ingestion finished with partial success")
	}
}

func clientConfig(cfg *config.Specification) *ai.ClientConfig {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}
	case "vertexai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderVertexAI,
		}
	default:
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
