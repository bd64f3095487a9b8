// Package chunker splits extracted document text into overlapping,
// boundary-aware segments for embedding.
package chunker

import (
	"strings"
	"unicode"
)

// Segment is one chunk of the input text. Start and End are rune offsets;
// Text is the trimmed content of runes[Start:End].
type Segment struct {
	Index    int
	Start    int
	End      int
	Text     string
	Metadata string
}

// Chunker applies a validated Config.
type Chunker struct {
	cfg Config
}

// New returns a Chunker, or ErrInvalidConfig if cfg fails validation.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config { return c.cfg }

// Chunk splits text using the chunker's configuration.
func (c *Chunker) Chunk(text string) []Segment {
	return split([]rune(text), c.cfg)
}

// Chunk splits text into segments left to right. It is a pure function:
// the same input always yields the same segments.
func Chunk(text string, cfg Config) ([]Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return split([]rune(text), cfg), nil
}

func split(runes []rune, cfg Config) []Segment {
	n := len(runes)
	minLen := max(cfg.MinSize, 1)
	segments := []Segment{}

	start := 0
	for start < n {
		end := min(start+cfg.TargetSize, n)
		if end < n {
			end = findBoundary(runes, start, end, minLen, cfg)
		}
		// absorb a tail too short to stand alone when it fits under MaxSize
		if end < n && trimmedLen(runes, end, n) < minLen && n-start <= cfg.MaxSize {
			end = n
		}

		if trimmedLen(runes, start, end) >= minLen {
			text := strings.TrimSpace(string(runes[start:end]))
			segments = append(segments, Segment{
				Index:    len(segments),
				Start:    start,
				End:      end,
				Text:     text,
				Metadata: extractMetadata(text),
			})
		}

		if end >= n {
			break
		}
		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return segments
}

// findBoundary searches backward from preferredEnd for the best place to
// cut, trying sentence ends, then paragraph breaks, then whitespace. A cut
// is only accepted if the segment keeps at least minLen characters.
func findBoundary(runes []rune, start, preferredEnd, minLen int, cfg Config) int {
	n := len(runes)
	fits := func(end int) bool { return trimmedLen(runes, start, end) >= minLen }

	if cfg.PreferSentenceBoundary {
		for i := preferredEnd - 1; i >= start; i-- {
			if isTerminator(runes[i]) && (i+1 == n || unicode.IsSpace(runes[i+1])) && fits(i+1) {
				return i + 1
			}
		}
	}
	if cfg.PreferParagraphBoundary {
		for i := preferredEnd - 1; i >= start; i-- {
			if runes[i] == '\n' && i+1 < n && unicode.IsSpace(runes[i+1]) && fits(i+1) {
				return i + 1
			}
		}
	}
	if cfg.PreferSentenceBoundary || cfg.PreferParagraphBoundary {
		for i := preferredEnd; i > start; i-- {
			if unicode.IsSpace(runes[i]) && fits(i) {
				return i
			}
		}
	}
	return preferredEnd
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// trimmedLen is len(strings.TrimSpace(string(runes[start:end]))) in runes.
func trimmedLen(runes []rune, start, end int) int {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return end - start
}
