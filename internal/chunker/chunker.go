// Package chunker regroups extracted document fragments into token-budgeted,
// structurally coherent passages: Blocks → Units → Chunks. The pipeline is
// deterministic, performs no I/O, and shares no state across invocations.
package chunker

import (
	"errors"
	"fmt"
)

// Config controls chunking behavior. The zero value is not usable directly;
// Chunk fills missing fields from DefaultConfig.
type Config struct {
	TargetTokens  int // preferred chunk size
	MaxTokens     int // hard ceiling, within a bounded tolerance
	MinTokens     int // minimum size before a flush is allowed
	OverlapTokens int // trailing slice of the previous chunk to prepend; 0 disables

	// CharsPerToken converts character counts to approximate token counts.
	// The default is tuned for Cyrillic text.
	CharsPerToken float64

	// Repeating header/footer detection. These are heuristic constants kept
	// configurable rather than re-derived.
	BoundaryRepeatRatio float64 // fraction of pages a boundary line must repeat on
	BoundaryMaxLen      int     // max normalized length of a boundary candidate
	BoundaryMinPages    int     // minimum page count before detection applies
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TargetTokens:        450,
		MaxTokens:           800,
		MinTokens:           200,
		OverlapTokens:       0,
		CharsPerToken:       3.6,
		BoundaryRepeatRatio: 0.6,
		BoundaryMaxLen:      100,
		BoundaryMinPages:    3,
	}
}

// Validate checks the budget ordering invariant.
func (c Config) Validate() error {
	if c.TargetTokens <= 0 || c.MaxTokens <= 0 || c.MinTokens <= 0 {
		return errors.New("chunker: token budgets must be positive")
	}
	if c.OverlapTokens < 0 {
		return errors.New("chunker: overlap_tokens must not be negative")
	}
	if c.MinTokens > c.TargetTokens || c.TargetTokens > c.MaxTokens {
		return fmt.Errorf("chunker: budgets must satisfy min <= target <= max, got %d/%d/%d",
			c.MinTokens, c.TargetTokens, c.MaxTokens)
	}
	if c.CharsPerToken <= 0 {
		return errors.New("chunker: chars_per_token must be positive")
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetTokens <= 0 {
		c.TargetTokens = d.TargetTokens
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MinTokens <= 0 {
		c.MinTokens = d.MinTokens
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = d.CharsPerToken
	}
	if c.BoundaryRepeatRatio <= 0 {
		c.BoundaryRepeatRatio = d.BoundaryRepeatRatio
	}
	if c.BoundaryMaxLen <= 0 {
		c.BoundaryMaxLen = d.BoundaryMaxLen
	}
	if c.BoundaryMinPages <= 0 {
		c.BoundaryMinPages = d.BoundaryMinPages
	}
	return c
}

// Chunk runs the full pipeline over an ordered block sequence. An empty
// input yields an empty result, not an error.
func Chunk(blocks []TextBlock, cfg Config) []ChunkResult {
	cfg = cfg.withDefaults()
	if len(blocks) == 0 {
		return nil
	}

	blocks = NormalizeBlocks(blocks)
	blocks = removeRepeatingBoundaries(blocks, cfg)
	units := blocksToUnits(blocks)
	chunks := packUnits(units, cfg)
	chunks = mergeUndersized(chunks, cfg)
	if cfg.OverlapTokens > 0 {
		chunks = injectOverlap(chunks, cfg)
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}
