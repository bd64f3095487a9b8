package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a Config could not make progress or
// could never produce a chunk.
var ErrInvalidConfig = errors.New("invalid chunker config")

const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 200
	DefaultMinSize    = 100
	DefaultMaxSize    = 2000
)

// Config controls segment sizes and boundary snapping. Sizes are counted in
// characters (runes), not bytes.
type Config struct {
	TargetSize              int  `yaml:"target_size"`
	Overlap                 int  `yaml:"overlap"`
	MinSize                 int  `yaml:"min_size"`
	MaxSize                 int  `yaml:"max_size"`
	PreferSentenceBoundary  bool `yaml:"prefer_sentence_boundary"`
	PreferParagraphBoundary bool `yaml:"prefer_paragraph_boundary"`
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		TargetSize:              DefaultTargetSize,
		Overlap:                 DefaultOverlap,
		MinSize:                 DefaultMinSize,
		MaxSize:                 DefaultMaxSize,
		PreferSentenceBoundary:  true,
		PreferParagraphBoundary: true,
	}
}

// Validate rejects configurations instead of clamping them.
func (c Config) Validate() error {
	switch {
	case c.TargetSize <= 0:
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidConfig, c.TargetSize)
	case c.Overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
	case c.Overlap >= c.TargetSize:
		return fmt.Errorf("%w: overlap (%d) must be smaller than target size (%d)",
			ErrInvalidConfig, c.Overlap, c.TargetSize)
	case c.MinSize < 0:
		return fmt.Errorf("%w: min size must not be negative, got %d", ErrInvalidConfig, c.MinSize)
	case c.MinSize > c.TargetSize:
		return fmt.Errorf("%w: min size (%d) exceeds target size (%d)", ErrInvalidConfig, c.MinSize, c.TargetSize)
	case c.MaxSize < c.TargetSize:
		return fmt.Errorf("%w: max size (%d) is smaller than target size (%d)",
			ErrInvalidConfig, c.MaxSize, c.TargetSize)
	}
	return nil
}
