package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// defaultSeparators are tried in order: paragraphs, lines, words, characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text into overlapping chunks, preferring to cut at paragraph,
// then line, then word boundaries. Sizes are counted in characters (runes).
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap sets how many trailing characters of a chunk may be repeated
// at the start of the next one.
func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// NewSplitter creates a splitter with the given options.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// ChunkSize returns the configured chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the effective overlap.
func (s *Splitter) ChunkOverlap() int { return s.overlap }

// Split returns the chunks of text in document order. Chunks are trimmed of
// surrounding whitespace and never empty.
func (s *Splitter) Split(text string) []string {
	chunks := s.split(text, s.separators)
	if chunks == nil {
		return []string{}
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator present in text; the rest are used for oversized pieces.
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most chunkSize characters,
// starting each new chunk with as much of the previous tail as fits the overlap.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		lengths []int
		total   int
	)
	flush := func() {
		if t := strings.TrimSpace(strings.Join(current, "")); t != "" {
			chunks = append(chunks, t)
		}
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			flush()
			for total > s.overlap || (total+n > s.chunkSize && total > 0) {
				total -= lengths[0]
				current, lengths = current[1:], lengths[1:]
			}
		}
		current = append(current, piece)
		lengths = append(lengths, n)
		total += n
	}
	flush()
	return chunks
}

// splitKeepingSeparator splits text on sep, attaching each separator to the
// start of the piece that follows it. An empty sep splits into characters.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, p := range parts[1:] {
		pieces = append(pieces, sep+p)
	}
	return pieces
}
