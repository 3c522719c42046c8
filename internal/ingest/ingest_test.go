package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/cache"
	"repolens/internal/embed"
	"repolens/internal/segment"
	"repolens/internal/store"
	"repolens/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type countingClient struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (c *countingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (c *countingClient) Dim() int { return 1 }

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mockStore struct {
	mu         sync.Mutex
	upserts    []models.Chunk
	batches    int
	marked     map[string]bool
	indexed    bool
	failUpsert bool
	failAfter  int // fail every batch after this many succeeded; 0 disables
}

func newMockStore() *mockStore {
	return &mockStore{marked: make(map[string]bool)}
}

func (m *mockStore) Migrate(ctx context.Context, dim int) error { return nil }

func (m *mockStore) UpsertBatch(ctx context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert || (m.failAfter > 0 && m.batches >= m.failAfter) {
		return &models.IndexStoreError{Op: "upsert", Err: errors.New("connection reset")}
	}
	m.batches++
	m.upserts = append(m.upserts, chunks...)
	return nil
}

func (m *mockStore) MarkRevisionIndexed(ctx context.Context, revision string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[revision] = true
	return nil
}

func (m *mockStore) IsRevisionIndexed(ctx context.Context, revision string) (bool, error) {
	return m.indexed, nil
}

func (m *mockStore) Search(ctx context.Context, vec []float32, k int, f store.Filters) ([]models.Candidate, error) {
	return nil, nil
}

func newIngestor(client *countingClient, st *mockStore, registry *segment.Registry) *Ingestor {
	if registry == nil {
		registry = segment.NewRegistry()
	}
	retry := embed.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	return &Ingestor{
		Segmenter:    segment.New(registry, 600, 5),
		Orchestrator: embed.New(client, cache.New(), 8, 2, retry),
		Store:        st,
		Workers:      2,
	}
}

func smallSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Revision: "rev-1",
		Files: []models.File{
			{Path: "a.txt", Content: "hello\nworld"},
			{Path: "b.txt", Content: "second file"},
		},
	}
}

func TestRun_IndexesSnapshot(t *testing.T) {
	client := &countingClient{}
	st := newMockStore()
	in := newIngestor(client, st, nil)

	sum, err := in.Run(context.Background(), smallSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "rev-1", sum.Revision)
	assert.Equal(t, 2, sum.FilesTotal)
	assert.Equal(t, 0, sum.FilesSkipped)
	assert.Equal(t, 2, sum.ChunksTotal)
	assert.Equal(t, 2, sum.ChunksIndexed)
	assert.Equal(t, 0, sum.ChunksFailed)
	assert.True(t, st.marked["rev-1"])
	require.Len(t, st.upserts, 2)
	for _, c := range st.upserts {
		assert.NotNil(t, c.Embedding, "only embedded chunks reach the store")
	}
}

func TestRun_SkipsAlreadyIndexedRevision(t *testing.T) {
	client := &countingClient{}
	st := newMockStore()
	st.indexed = true
	in := newIngestor(client, st, nil)

	sum, err := in.Run(context.Background(), smallSnapshot())
	require.NoError(t, err)

	assert.True(t, sum.AlreadyIndexed)
	assert.Equal(t, 0, client.callCount(), "an indexed revision costs zero provider calls")
	assert.Empty(t, st.upserts)
}

func TestRun_ProviderFailureLeavesRevisionUnmarked(t *testing.T) {
	client := &countingClient{fail: true}
	st := newMockStore()
	in := newIngestor(client, st, nil)

	sum, err := in.Run(context.Background(), smallSnapshot())
	require.NoError(t, err, "embedding failures degrade the run, they do not abort it")

	assert.Equal(t, 2, sum.ChunksFailed)
	assert.Equal(t, 0, sum.ChunksIndexed)
	assert.Empty(t, st.upserts, "failed chunks never reach the store")
	assert.False(t, st.marked["rev-1"], "a partial revision must be retried next run")
}

func TestRun_UpsertFailureAborts(t *testing.T) {
	client := &countingClient{}
	st := newMockStore()
	st.failUpsert = true
	in := newIngestor(client, st, nil)

	sum, err := in.Run(context.Background(), smallSnapshot())
	require.Error(t, err)

	var serr *models.IndexStoreError
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, sum.ChunksIndexed)
	assert.False(t, st.marked["rev-1"])
}

func TestRun_CommittedBatchesSurviveAbort(t *testing.T) {
	client := &countingClient{}
	st := newMockStore()
	st.failAfter = 1
	in := newIngestor(client, st, nil)

	// 150 one-chunk files fill one full batch plus a partial second one.
	files := make([]models.File, 150)
	for i := range files {
		files[i] = models.File{
			Path:    fmt.Sprintf("f%03d.txt", i),
			Content: fmt.Sprintf("content of file %d", i),
		}
	}
	snap := &models.Snapshot{Revision: "rev-3", Files: files}

	sum, err := in.Run(context.Background(), snap)
	require.Error(t, err)

	var serr *models.IndexStoreError
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, 100, sum.ChunksIndexed, "the committed first batch stays counted")
	assert.Len(t, st.upserts, 100)
	assert.False(t, st.marked["rev-3"], "an aborted run never marks the revision")
}

func TestRun_SegmentationFailureSkipsFile(t *testing.T) {
	// A grammar whose query cannot compile makes every file of that
	// language fail segmentation.
	registry := segment.NewRegistry()
	registry.Register("go", &segment.LanguageSpec{
		Language: golang.GetLanguage(),
		Query:    `(no_such_node) @chunk`,
	})

	client := &countingClient{}
	st := newMockStore()
	in := newIngestor(client, st, registry)

	snap := &models.Snapshot{
		Revision: "rev-2",
		Files: []models.File{
			{Path: "bad.go", Content: "package bad\n"},
			{Path: "ok.txt", Content: "plain text"},
		},
	}

	sum, err := in.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.FilesSkipped)
	assert.Equal(t, 1, sum.ChunksTotal)
	assert.Equal(t, 1, sum.ChunksIndexed)
	assert.True(t, st.marked["rev-2"], "skipped files do not block the revision mark")
}

func TestRun_CancelledContext(t *testing.T) {
	client := &countingClient{}
	st := newMockStore()
	in := newIngestor(client, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Run(ctx, smallSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
