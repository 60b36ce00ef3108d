package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotInitialized is returned when ProcessText is called before a
// successful Initialize. There is no implicit lazy initialization.
var ErrNotInitialized = errors.New("document processor not initialized")

// Chunker splits raw text into documents. Implemented by chunk.Chunker.
type Chunker interface {
	Chunk(text string, metadata map[string]any) []Document
}

// Embedder is the embedding capability the processor needs.
// Implemented by embed.TextEmbedder.
type Embedder interface {
	Initialize(ctx context.Context) error
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Processor composes chunking and batch embedding to turn raw text plus
// metadata into ready-to-store documents.
type Processor struct {
	chunker     Chunker
	embedder    Embedder
	initialized bool
	logger      *slog.Logger
}

// NewProcessor creates a Processor. Call Initialize before ProcessText.
func NewProcessor(chunker Chunker, embedder Embedder, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// Initialize initializes the underlying embedder. Idempotent.
func (p *Processor) Initialize(ctx context.Context) error {
	if p.initialized {
		return nil
	}
	if err := p.embedder.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	p.initialized = true
	p.logger.Debug("document processor initialized", "dimension", p.embedder.Dimension())
	return nil
}

// Initialized reports whether Initialize has completed successfully.
func (p *Processor) Initialized() bool { return p.initialized }

// Dimension returns the effective embedding dimension of the underlying
// embedder.
func (p *Processor) Dimension() int { return p.embedder.Dimension() }

// ProcessText chunks text, embeds all chunk contents in a single batch call,
// and attaches each embedding to its chunk by positional order.
//
// Empty input returns nil without calling the embedder. Calling before
// Initialize fails with ErrNotInitialized.
func (p *Processor) ProcessText(ctx context.Context, text string, metadata map[string]any) ([]Document, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	docs := p.chunker.Chunk(text, metadata)
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(docs), err)
	}

	for i := range docs {
		docs[i].Embedding = embeddings[i]
	}

	p.logger.Debug("processed text into embedded documents", "count", len(docs))
	return docs, nil
}
