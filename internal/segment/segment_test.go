package segment_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/segment"
	"repolens/internal/segment/languages"
	"repolens/pkg/models"
)

func newTestRegistry() *segment.Registry {
	r := segment.NewRegistry()
	languages.RegisterAll(r)
	return r
}

// reconstruct joins chunk contents, trimming each chunk's declared overlap
// prefix, which must reproduce the original file exactly.
func reconstruct(chunks []models.Chunk) string {
	var parts []string
	for _, c := range chunks {
		lines := strings.Split(c.Content, "\n")
		parts = append(parts, lines[c.OverlapPrefix:]...)
	}
	return strings.Join(parts, "\n")
}

func TestFile_Empty(t *testing.T) {
	s := segment.New(newTestRegistry(), 600, 5)
	chunks, err := s.File("empty.txt", "unknown", "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFile_SlidingWindowScenario(t *testing.T) {
	// 500 lines of 40 chars: 50 lines fit a 512-token budget exactly,
	// so an overlap of 5 yields a stride of 45 and 11 chunks.
	lines := make([]string, 500)
	for i := range lines {
		lines[i] = strings.Repeat("x", 40)
	}
	text := strings.Join(lines, "\n")

	s := segment.New(newTestRegistry(), 512, 5)
	chunks, err := s.File("big.txt", "unknown", text)
	require.NoError(t, err)

	require.Len(t, chunks, 11)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 50, chunks[0].EndLine)
	assert.Equal(t, 451, chunks[10].StartLine)
	assert.Equal(t, 500, chunks[10].EndLine)

	for i, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 512, "chunk %d over budget", i)
		if i > 0 {
			assert.Equal(t, 5, c.OverlapPrefix, "chunk %d", i)
			assert.Equal(t, 5, chunks[i-1].OverlapSuffix, "chunk %d", i-1)
		}
	}

	assert.Equal(t, text, reconstruct(chunks))
}

func TestFile_WholeFileFallback(t *testing.T) {
	text := "just one short file\nwith two lines"
	s := segment.New(newTestRegistry(), 600, 5)
	chunks, err := s.File("notes.txt", "unknown", text)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, models.KindFile, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, text, chunks[0].Content)
}

func TestFile_StructuralGo(t *testing.T) {
	src := `package demo

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`
	s := segment.New(newTestRegistry(), 600, 5)
	chunks, err := s.File("math.go", "go", src)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Gap-free coverage: structural chunks do not overlap.
	assert.Equal(t, 1, chunks[0].StartLine)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndLine+1, chunks[i].StartLine, "gap before chunk %d", i)
	}
	assert.Equal(t, strings.Count(src, "\n")+1, chunks[len(chunks)-1].EndLine)

	var functions int
	for _, c := range chunks {
		if c.Kind == models.KindFunction {
			functions++
		}
	}
	assert.Equal(t, 2, functions)

	assert.Equal(t, src, reconstruct(chunks))
}

func TestFile_OversizedFunctionSplitsOnBlankLines(t *testing.T) {
	var b strings.Builder
	b.WriteString("package demo\n\nfunc Big() {\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "\tstep%d := %d // %s\n", i, i, strings.Repeat("y", 30))
		if i%10 == 9 {
			b.WriteString("\n")
		}
	}
	b.WriteString("}\n")
	src := b.String()

	s := segment.New(newTestRegistry(), 120, 5)
	chunks, err := s.File("big.go", "go", src)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 120, "chunk %d over budget", i)
	}
	assert.Equal(t, src, reconstruct(chunks))
}

func TestFile_BudgetHeldAfterBlankLineCut(t *testing.T) {
	// One blank line early in the body, then a long run of statements with
	// a 200-char line at the point where the budget first overflows. The
	// residual span after the blank-line cut must itself be re-split
	// instead of being emitted over budget.
	var b strings.Builder
	b.WriteString("package demo\n\nfunc Big() {\n")
	b.WriteString("\tinit := 0\n\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, "\tv%d := %q\n", i, strings.Repeat("y", 30))
	}
	b.WriteString("\t" + strings.Repeat("z", 200) + "\n")
	for i := 7; i < 10; i++ {
		fmt.Fprintf(&b, "\tv%d := %q\n", i, strings.Repeat("y", 30))
	}
	b.WriteString("}\n")
	src := b.String()

	s := segment.New(newTestRegistry(), 100, 5)
	chunks, err := s.File("big.go", "go", src)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 100, "chunk %d [%d,%d] over budget", i, c.StartLine, c.EndLine)
	}
	assert.Equal(t, src, reconstruct(chunks))
}

func TestFile_Deterministic(t *testing.T) {
	src := "package demo\n\nfunc A() {}\n\nfunc B() {}\n"
	s := segment.New(newTestRegistry(), 600, 5)

	first, err := s.File("a.go", "go", src)
	require.NoError(t, err)
	second, err := s.File("a.go", "go", src)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHashContent_IdenticalTextSharesHash(t *testing.T) {
	header := "// Copyright 2026 The Authors\n// SPDX-License-Identifier: MIT"
	s := segment.New(newTestRegistry(), 600, 5)

	a, err := s.File("a/license.txt", "unknown", header)
	require.NoError(t, err)
	b, err := s.File("b/license.txt", "unknown", header)
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ContentHash, b[0].ContentHash)
	assert.NotEqual(t, a[0].Path, b[0].Path)
}
