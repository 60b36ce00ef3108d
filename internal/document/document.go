// Package document defines the document model shared by the chunking,
// embedding, and vector storage layers, and the Processor that turns raw
// text into embedded, addressable documents.
package document

import "time"

// Document represents an embeddable unit of text.
//
// A Document is created either by chunking a larger body of text or directly
// by a caller. Once an embedding is attached the document is treated as
// immutable; persistence is a full upsert keyed by ID.
type Document struct {
	ID        string         // Unique identifier within a store
	Content   string         // Non-empty text content
	Metadata  map[string]any // Open key/value mapping (JSON-serializable values)
	Embedding []float32      // Fixed-length vector, nil until embedded
	CreatedAt time.Time      // Creation timestamp
}

// Metadata keys attached to every chunk produced by a Chunker, alongside the
// caller-provided metadata.
const (
	MetaChunkID    = "chunk_id"    // ordinal index of the chunk
	MetaChunkStart = "chunk_start" // start offset into the cleaned source text
	MetaChunkEnd   = "chunk_end"   // end offset into the cleaned source text
	MetaChunkSize  = "chunk_size"  // length of the trimmed chunk content
)
