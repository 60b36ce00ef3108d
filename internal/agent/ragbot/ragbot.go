// Package ragbot implements a retrieval-augmented agent over the pgvector
// document store.
package ragbot

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragbot-io/ragbot/internal/agent"
	"github.com/ragbot-io/ragbot/internal/document"
	"github.com/ragbot-io/ragbot/internal/vectorstore"
)

// searchK bounds how many documents back a single answer.
const searchK = 3

// SeedContent is the sample knowledge base shipped in the binary. Both
// retrieval agents index it when their backing store is empty.
//
//go:embed seed.md
var SeedContent string

// Processor turns raw text into embedded documents. Implemented by
// document.Processor.
type Processor interface {
	Initialize(ctx context.Context) error
	ProcessText(ctx context.Context, text string, metadata map[string]any) ([]document.Document, error)
	Dimension() int
}

// Embedder embeds a single query string. Implemented by embed.TextEmbedder.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector store surface the agent needs. Implemented by
// vectorstore.Store.
type Store interface {
	Initialize(ctx context.Context) bool
	AddDocuments(ctx context.Context, docs []document.Document) bool
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, k int, threshold float64) []vectorstore.SearchResult
	DocumentCount(ctx context.Context) int
	HealthCheck(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Agent answers questions from documents retrieved by vector similarity.
type Agent struct {
	processor   Processor
	embedder    Embedder
	store       Store
	threshold   float64
	initialized bool
	logger      *slog.Logger
}

// New creates the agent. threshold is the minimum similarity for retrieved
// documents.
func New(processor Processor, embedder Embedder, store Store, threshold float64, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		processor: processor,
		embedder:  embedder,
		store:     store,
		threshold: threshold,
		logger:    logger,
	}
}

// Initialize brings up the processing pipeline and the vector store, then
// seeds the knowledge base when it is empty. Idempotent.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.initialized {
		return nil
	}

	if err := a.processor.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing document processor: %w", err)
	}
	if !a.store.Initialize(ctx) {
		return fmt.Errorf("initializing vector store")
	}

	if a.store.DocumentCount(ctx) == 0 {
		a.seedKnowledgeBase(ctx)
	}

	a.initialized = true
	a.logger.Info("rag agent initialized", "documents", a.store.DocumentCount(ctx))
	return nil
}

// Invoke embeds the message, retrieves the closest documents, and templates
// an answer with sources. Errors surface to the manager, which turns them
// into user-facing strings.
func (a *Agent) Invoke(ctx context.Context, message string) (string, error) {
	queryEmbedding, err := a.embedder.EmbedText(ctx, message)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	results := a.store.SimilaritySearch(ctx, queryEmbedding, searchK, a.threshold)
	if len(results) == 0 {
		count := a.store.DocumentCount(ctx)
		return fmt.Sprintf(
			"No relevant documents found in my knowledge base for: %q. "+
				"The database contains %d documents. "+
				"You might want to try a different query or check if content has been loaded.",
			message, count), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*RAG Bot Response* (found %d relevant documents)\n\n", len(results))
	fmt.Fprintf(&b, "*Your question:* %s\n\n", message)
	fmt.Fprintf(&b, "*Based on my knowledge base:*\n%s\n\n", contextualAnswer(results))
	fmt.Fprintf(&b, "*Sources:*\n%s", formatSources(results))
	return b.String(), nil
}

// Info implements agent.Agent.
func (a *Agent) Info() agent.Info {
	return agent.Info{
		Name:        "RAG Bot",
		Description: "Retrieval-augmented generation over a pgvector knowledge base",
		Capabilities: []string{
			"vector_search",
			"document_retrieval",
			"contextual_responses",
			"knowledge_base_management",
		},
	}
}

// AddContent chunks, embeds, and stores new content in the knowledge base.
func (a *Agent) AddContent(ctx context.Context, content string, metadata map[string]any) bool {
	if !a.initialized {
		return false
	}

	docs, err := a.processor.ProcessText(ctx, content, metadata)
	if err != nil {
		a.logger.Error("failed to process new content", "error", err)
		return false
	}
	if len(docs) == 0 {
		return false
	}

	ok := a.store.AddDocuments(ctx, docs)
	if ok {
		a.logger.Info("added documents to knowledge base", "count", len(docs))
	}
	return ok
}

// SearchKnowledgeBase returns the k closest documents for a query, or nil
// before initialization and on embedding failure.
func (a *Agent) SearchKnowledgeBase(ctx context.Context, query string, k int) []vectorstore.SearchResult {
	if !a.initialized {
		return nil
	}

	queryEmbedding, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		a.logger.Error("failed to embed search query", "error", err)
		return nil
	}
	return a.store.SimilaritySearch(ctx, queryEmbedding, k, a.threshold)
}

// Stats implements agent.StatsProvider.
func (a *Agent) Stats(ctx context.Context) map[string]any {
	if !a.initialized {
		return map[string]any{"error": "not initialized"}
	}
	return map[string]any{
		"document_count":       a.store.DocumentCount(ctx),
		"vector_store_healthy": a.store.HealthCheck(ctx),
		"embedding_dimension":  a.processor.Dimension(),
		"similarity_threshold": a.threshold,
	}
}

// HealthCheck implements agent.HealthChecker.
func (a *Agent) HealthCheck(ctx context.Context) bool {
	if !a.initialized {
		return false
	}
	return a.store.HealthCheck(ctx)
}

// Close implements agent.Closer.
func (a *Agent) Close() error {
	a.initialized = false
	return a.store.Close(context.Background())
}

// seedKnowledgeBase loads the embedded sample content. Failures are logged,
// not fatal: an empty knowledge base still answers with the no-documents
// message.
func (a *Agent) seedKnowledgeBase(ctx context.Context) {
	docs, err := a.processor.ProcessText(ctx, SeedContent, map[string]any{
		"source": "seed.md",
		"type":   "company_info",
		"domain": "healthcare_benefits",
	})
	if err != nil {
		a.logger.Error("failed to process seed content", "error", err)
		return
	}
	if len(docs) == 0 {
		a.logger.Warn("seed content produced no documents")
		return
	}
	if !a.store.AddDocuments(ctx, docs) {
		a.logger.Error("failed to store seed documents")
		return
	}
	a.logger.Info("seeded knowledge base", "documents", len(docs))
}

// contextualAnswer builds the answer body from retrieved documents: the
// best match in full, with a lead-in naming how many documents back it.
func contextualAnswer(results []vectorstore.SearchResult) string {
	best := results[0]

	// Lead with the best match, truncated at a sentence boundary when long.
	answer := best.Content
	if len(answer) > 600 {
		cut := strings.LastIndexAny(answer[:600], ".!?")
		if cut > 0 {
			answer = answer[:cut+1]
		} else {
			answer = answer[:600]
		}
	}
	return answer
}

// formatSources renders one bullet per retrieved document with its origin
// and similarity percentage.
func formatSources(results []vectorstore.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		source := "unknown"
		if s, ok := r.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		fmt.Fprintf(&b, "• Document %d: %s (relevance: %.1f%%)\n", i+1, source, r.Similarity*100)
	}
	return strings.TrimRight(b.String(), "\n")
}
