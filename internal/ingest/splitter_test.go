package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter_Defaults(t *testing.T) {
	s := NewSplitter()
	assert.Equal(t, DefaultChunkSize, s.ChunkSize())
	assert.Equal(t, DefaultChunkOverlap, s.ChunkOverlap())
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	s := NewSplitter(WithChunkSize(100), WithChunkOverlap(100))
	assert.Equal(t, 25, s.ChunkOverlap())

	s = NewSplitter(WithChunkSize(-5), WithChunkOverlap(-1))
	assert.Equal(t, DefaultChunkSize, s.ChunkSize())
	assert.Equal(t, DefaultChunkOverlap, s.ChunkOverlap())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []string
	}{
		{
			name: "short text is one chunk",
			size: 1000, overlap: 200,
			text: "hello world",
			want: []string{"hello world"},
		},
		{
			name: "whitespace only",
			size: 1000, overlap: 200,
			text: " \n\n \t ",
			want: []string{},
		},
		{
			name: "paragraphs fitting together stay together",
			size: 20, overlap: 0,
			text: "aaaa bbbb\n\ncccc dddd",
			want: []string{"aaaa bbbb\n\ncccc dddd"},
		},
		{
			name: "paragraphs split at the blank line",
			size: 15, overlap: 0,
			text: "aaaa bbbb\n\ncccc dddd",
			want: []string{"aaaa bbbb", "cccc dddd"},
		},
		{
			name: "word overlap carried into next chunk",
			size: 10, overlap: 5,
			text: "one two three four",
			want: []string{"one two", "two three", "four"},
		},
		{
			name: "sizes count characters not bytes",
			size: 6, overlap: 0,
			text: "héllo wörld",
			want: []string{"héllo", "wörld"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(WithChunkSize(tt.size), WithChunkOverlap(tt.overlap))
			assert.Equal(t, tt.want, s.Split(tt.text))
		})
	}
}

func TestSplit_ChunksNeverExceedSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%17))
		b.WriteString(" ends here.")
		if i%5 == 0 {
			b.WriteString("\n\n")
		} else if i%3 == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	// A single word longer than a chunk forces the character-level split.
	b.WriteString(strings.Repeat("y", 250))

	s := NewSplitter(WithChunkSize(100), WithChunkOverlap(20))
	chunks := s.Split(b.String())
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100, "chunk %d too long", i)
		assert.NotEmpty(t, strings.TrimSpace(c), "chunk %d empty", i)
		assert.Equal(t, strings.TrimSpace(c), c, "chunk %d not trimmed", i)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "Sentence number"))
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "yyyy"))
}

func TestSplit_CoversAllWords(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta\n", 40)
	chunks := NewSplitter(WithChunkSize(50), WithChunkOverlap(10)).Split(text)

	joined := strings.Join(chunks, " ")
	for _, w := range []string{"alpha", "beta", "gamma", "delta"} {
		assert.GreaterOrEqual(t, strings.Count(joined, w), 40, "word %q lost", w)
	}
}
