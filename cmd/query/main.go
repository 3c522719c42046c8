package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"repolens/internal/ai"
	"repolens/internal/config"
	"repolens/internal/search"
	"repolens/internal/store"
	"repolens/pkg/models"
)

func main() {
	fs := pflag.NewFlagSet("repolens-query", pflag.ExitOnError)
	k := fs.IntP("top", "k", 10, "Number of candidates to retrieve")
	language := fs.String("language", "", "Restrict to one language")
	pathPrefix := fs.String("path-prefix", "", "Restrict to paths under this prefix")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage
	setLogLevel(cfg.LogLevel)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: repolens-query [flags] <question>")
		cfg.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ai.NewClient(ctx, clientConfig(&cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedding client")
	}

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.Close()

	svc := search.NewService(client, st, search.Weights{
		Similarity: cfg.Rerank.SimilarityWeight,
		Lexical:    cfg.Rerank.LexicalWeight,
		Kind:       cfg.Rerank.KindWeight,
	}, cfg.Chunking.StitchMaxGap)

	blocks, err := svc.Query(ctx, query, *k, store.Filters{
		Language:   *language,
		PathPrefix: *pathPrefix,
	})
	if err != nil {
		var rerr *models.RetrievalError
		if errors.As(err, &rerr) {
			log.Fatal().Err(rerr.Err).Str("stage", rerr.Stage).Msg("query failed")
		}
		log.Fatal().Err(err).Msg("query failed")
	}

	if len(blocks) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, b := range blocks {
		fmt.Printf("== %s:%d-%d (score %.3f)\n", b.Path, b.StartLine, b.EndLine, b.Score)
		fmt.Println(b.Content)
		fmt.Println()
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
