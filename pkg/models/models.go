package models

// ChunkKind classifies how a chunk was carved out of its file.
type ChunkKind string

const (
	KindFunction ChunkKind = "function"
	KindType     ChunkKind = "type"
	KindBlock    ChunkKind = "block"
	KindFile     ChunkKind = "file"
)

// Chunk is a contiguous span of one source file. Embedding is nil until the
// orchestrator has successfully embedded the content; chunks with a nil
// embedding are never written to the index.
type Chunk struct {
	Path          string    `json:"path"`
	StartLine     int       `json:"start_line"` // 1-based, inclusive
	EndLine       int       `json:"end_line"`   // 1-based, inclusive
	Language      string    `json:"language"`
	Kind          ChunkKind `json:"kind"`
	ContentHash   string    `json:"content_hash"`
	TokenCount    int       `json:"token_count"`
	OverlapPrefix int       `json:"overlap_prefix"` // lines shared with the previous chunk
	OverlapSuffix int       `json:"overlap_suffix"` // lines shared with the next chunk
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"`
	Failed        bool      `json:"failed"`
}

// Lines returns the number of lines the chunk spans.
func (c Chunk) Lines() int { return c.EndLine - c.StartLine + 1 }

// File is one entry of a repository snapshot.
type File struct {
	Path    string
	Content string
}

// Snapshot is the ordered file set and revision marker an indexing run
// operates over. Snapshots are append-only across revisions; the embedding
// cache is keyed by content hash and shared between them.
type Snapshot struct {
	Revision string
	Files    []File
}

// Candidate is one retrieval hit. RawScore is the similarity reported by the
// vector store; FinalScore is assigned by the re-ranker.
type Candidate struct {
	Chunk      Chunk   `json:"chunk"`
	RawScore   float64 `json:"raw_score"`
	FinalScore float64 `json:"final_score"`
}

// Block is a stitched, deduplicated line range built from one or more
// candidates of the same file. It references ranges by value and owns no
// chunks.
type Block struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"` // best final score of any contributing candidate
	Content   string  `json:"content"`
}
