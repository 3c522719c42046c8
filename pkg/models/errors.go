package models

import "fmt"

// SegmentationError reports a file that could not be segmented. Ingestion
// skips the file and continues.
type SegmentationError struct {
	Path string
	Err  error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segment %s: %v", e.Path, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// EmbeddingProviderError reports a provider failure after retries were
// exhausted. The affected chunks are marked failed; the run continues.
type EmbeddingProviderError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// IndexStoreError reports a vector-store write failure. The current batch is
// aborted; previously committed batches remain valid.
type IndexStoreError struct {
	Op  string
	Err error
}

func (e *IndexStoreError) Error() string {
	return fmt.Sprintf("index store %s: %v", e.Op, e.Err)
}

func (e *IndexStoreError) Unwrap() error { return e.Err }

// Query-path stages, reported by RetrievalError for diagnosability.
// StageRerank is reserved: the built-in re-ranker is pure and cannot fail,
// but a pluggable scoring strategy can.
const (
	StageEmbed  = "embed"
	StageStore  = "store"
	StageRerank = "rerank"
)

// RetrievalError fails a query fast; a query either fully succeeds or
// returns one of these, never a silently truncated result.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ConfigurationError reports invalid chunking or runtime parameters. Fatal
// at startup.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}
