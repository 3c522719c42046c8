package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"repolens/internal/ai"
	"repolens/internal/store"
	"repolens/pkg/models"
)

const (
	queryCacheSize = 512
	queryCacheTTL  = 5 * time.Minute
)

// cacheEntry holds a cached candidate set with its expiry.
type cacheEntry struct {
	candidates []models.Candidate
	expiresAt  time.Time
}

// Retriever embeds a query and runs a filtered similarity search. A query
// either fully succeeds or fails with a RetrievalError naming the failing
// stage; it never silently returns a partial candidate set.
type Retriever struct {
	Client ai.Client
	Store  store.ChunkStore
	cache  *lru.Cache[[32]byte, cacheEntry]
}

// NewRetriever creates a retriever with a small TTL'd query cache.
func NewRetriever(client ai.Client, st store.ChunkStore) *Retriever {
	c, err := lru.New[[32]byte, cacheEntry](queryCacheSize)
	if err != nil {
		// Only possible with a non-positive size.
		panic(fmt.Sprintf("query cache: %v", err))
	}
	return &Retriever{Client: client, Store: st, cache: c}
}

// Search returns up to k candidates for the query under the given filters,
// each carrying the store's raw similarity score.
func (r *Retriever) Search(ctx context.Context, query string, k int, f store.Filters) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &models.RetrievalError{Stage: models.StageEmbed, Err: fmt.Errorf("empty query")}
	}
	if k <= 0 {
		k = 10
	}

	key := queryKey(query, k, f)
	if entry, ok := r.cache.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.candidates, nil
		}
		r.cache.Remove(key)
	}

	vec, err := r.Client.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &models.RetrievalError{Stage: models.StageEmbed, Err: err}
	}

	candidates, err := r.Store.Search(ctx, vec, k, f)
	if err != nil {
		return nil, &models.RetrievalError{Stage: models.StageStore, Err: err}
	}

	r.cache.Add(key, cacheEntry{candidates: candidates, expiresAt: time.Now().Add(queryCacheTTL)})
	log.Debug().Str("query", query).Int("k", k).Int("candidates", len(candidates)).Msg("retrieval complete")
	return candidates, nil
}

// queryKey hashes the full request so distinct filters never share a cache
// slot.
func queryKey(query string, k int, f store.Filters) [32]byte {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("|")
	fmt.Fprintf(&b, "%d", k)
	b.WriteString("|")
	b.WriteString(f.Language)
	b.WriteString("|")
	b.WriteString(f.PathPrefix)
	return sha256.Sum256([]byte(b.String()))
}
