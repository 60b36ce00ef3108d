// Package embed wraps embedding providers behind a small client interface
// and adds the initialization and dimension-reconciliation behavior the
// retrieval pipeline depends on.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotInitialized is returned when embedding is attempted before
// Initialize has succeeded.
var ErrNotInitialized = errors.New("embedder not initialized")

// Client is the provider-side embedding contract: texts in, one fixed-length
// vector per text out, same order as the input.
type Client interface {
	// Embed returns one embedding per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model identifier used for embeddings.
	Model() string
}

// TextEmbedder produces fixed-length vectors for text using a configured
// embedding model. It must be initialized before use; Initialize probes the
// model once and adopts the model's actual output dimension when it differs
// from the configured one.
//
// TextEmbedder is safe for concurrent use after Initialize.
type TextEmbedder struct {
	client      Client
	dim         int
	initialized bool
	logger      *slog.Logger
}

// New creates a TextEmbedder expecting vectors of the given dimension.
func New(client Client, dimension int, logger *slog.Logger) *TextEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextEmbedder{
		client: client,
		dim:    dimension,
		logger: logger,
	}
}

// Initialize loads/probes the embedding model. It embeds a short test string
// to verify the model responds and to learn its actual output dimension.
// A dimension mismatch is not fatal: the embedder adopts the actual
// dimension and logs a warning, so callers must read Dimension() rather
// than assume the configured default.
func (e *TextEmbedder) Initialize(ctx context.Context) error {
	if e.initialized {
		return nil
	}

	e.logger.Info("loading embedding model", "model", e.client.Model())

	vecs, err := e.client.Embed(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("initializing embedding model %q: %w", e.client.Model(), err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embedding model %q returned an empty vector", e.client.Model())
	}

	if actual := len(vecs[0]); actual != e.dim {
		e.logger.Warn("embedding dimension mismatch",
			"expected", e.dim,
			"actual", actual)
		e.dim = actual
	}

	e.initialized = true
	e.logger.Info("embedding model loaded", "model", e.client.Model(), "dimension", e.dim)
	return nil
}

// EmbedText generates an embedding for a single text.
func (e *TextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}

	vecs, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned for text")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for a batch of texts, in input order.
func (e *TextEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := e.client.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("generating batch embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimension returns the effective embedding dimension. Only meaningful after
// Initialize, which may have adjusted it to the model's actual output size.
func (e *TextEmbedder) Dimension() int { return e.dim }

// Model returns the underlying model identifier.
func (e *TextEmbedder) Model() string { return e.client.Model() }

// Initialized reports whether Initialize has completed successfully.
func (e *TextEmbedder) Initialized() bool { return e.initialized }
