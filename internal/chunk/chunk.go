// Package chunk splits raw text into overlapping, sentence-boundary-aware
// chunks suitable for embedding.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ragbot-io/ragbot/internal/document"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200

	// boundaryLookback is how far before the proposed chunk end we search
	// for a sentence terminator.
	boundaryLookback = 200

	// boundaryLookahead extends the search window past the proposed end so a
	// sentence that straddles the boundary can finish.
	boundaryLookahead = 100
)

var (
	// whitespaceRun matches any run of whitespace, collapsed to one space.
	whitespaceRun = regexp.MustCompile(`\s+`)

	// controlChars matches ASCII/Latin-1 control characters (except the
	// whitespace already normalized above).
	controlChars = regexp.MustCompile("[\\x00-\\x08\\x0b\\x0c\\x0e-\\x1f\\x{7f}-\\x{9f}]")

	// sentenceEnd matches a sentence terminator followed by whitespace.
	sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
)

// Chunker deterministically splits text into overlapping chunks, preferring
// to break on sentence boundaries.
//
// The zero value is not useful; use New.
type Chunker struct {
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// New creates a Chunker with the given target chunk size and overlap, both in
// characters. Non-positive size or negative overlap fall back to the
// defaults; overlap must stay below size, and is clamped if it does not.
func New(chunkSize, overlap int, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= chunkSize {
		logger.Warn("chunk overlap >= chunk size, clamping", "chunk_size", chunkSize, "overlap", overlap)
		overlap = chunkSize / 2
	}

	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}
}

// Chunk splits text into overlapping documents. The caller-supplied metadata
// is copied into every chunk together with the chunk_id ordinal and the
// chunk_start/chunk_end character offsets into the cleaned text.
//
// Empty or whitespace-only input yields nil. Input shorter than the chunk
// size yields a single chunk covering the whole cleaned text.
func (c *Chunker) Chunk(text string, metadata map[string]any) []document.Document {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// All offset arithmetic is in characters, not bytes: slicing the UTF-8
	// string directly could cut a chunk mid-rune.
	runes := []rune(Clean(text))

	var chunks []document.Document
	start := 0
	ordinal := 0

	for start < len(runes) {
		end := start + c.chunkSize

		if end < len(runes) {
			// Prefer ending on a sentence boundary: search the tail of the
			// proposed chunk, extended slightly past its end, for the last
			// terminator followed by whitespace.
			searchStart := max(start+c.chunkSize-boundaryLookback, start)
			searchEnd := min(end+boundaryLookahead, len(runes))

			window := string(runes[searchStart:searchEnd])
			if locs := sentenceEnd.FindAllStringIndex(window, -1); len(locs) > 0 {
				// The regex reports byte offsets into the window; convert
				// back to characters.
				end = searchStart + utf8.RuneCountInString(window[:locs[len(locs)-1][1]])
			}
		} else {
			end = len(runes)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			meta := make(map[string]any, len(metadata)+4)
			for k, v := range metadata {
				meta[k] = v
			}
			meta[document.MetaChunkID] = ordinal
			meta[document.MetaChunkStart] = start
			meta[document.MetaChunkEnd] = end
			meta[document.MetaChunkSize] = utf8.RuneCountInString(content)

			chunks = append(chunks, document.Document{
				ID:       chunkID(content, ordinal),
				Content:  content,
				Metadata: meta,
			})
			ordinal++
		}

		// Advance with overlap; force forward progress in the degenerate
		// case where the overlap would not move past the previous end.
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	c.logger.Debug("split text into chunks", "count", len(chunks))
	return chunks
}

// ChunkSize returns the configured target chunk length in characters.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap between consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Clean collapses whitespace runs to single spaces, strips control
// characters, and trims the result. Chunk offsets refer to this cleaned text.
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// chunkID derives a deterministic chunk identifier from the chunk content
// and its ordinal index.
func chunkID(content string, ordinal int) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("chunk_%d_%s", ordinal, hex.EncodeToString(hash[:])[:8])
}
