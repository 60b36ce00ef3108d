// Package graphbot implements a graph-backed retrieval agent: documents and
// extracted concepts live in Neo4j, and answers come from traversing
// concept neighborhoods.
package graphbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragbot-io/ragbot/internal/agent"
	"github.com/ragbot-io/ragbot/internal/graph"
)

// GraphStore is the graph surface the agent needs. Implemented by
// graph.Store.
type GraphStore interface {
	Initialize(ctx context.Context) error
	AddDocument(ctx context.Context, docID, content string, metadata map[string]any) error
	AddConcept(ctx context.Context, concept graph.Concept) error
	AddRelationship(ctx context.Context, fromID, toID, relType string, properties map[string]any) error
	FindRelatedConcepts(ctx context.Context, conceptID string, maxDepth, limit int) ([]graph.RelatedConcept, error)
	SearchConcepts(ctx context.Context, query string, limit int) ([]graph.Concept, error)
	NodeCounts(ctx context.Context) (map[string]int64, error)
	Schema(ctx context.Context) (labels, relationshipTypes []string, err error)
	HealthCheck(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Agent answers questions by extracting concepts from the query and
// traversing the knowledge graph around them.
type Agent struct {
	store       GraphStore
	seed        string
	initialized bool
	logger      *slog.Logger
}

// New creates the agent. seed is sample content indexed into an empty
// graph on first initialization.
func New(store GraphStore, seed string, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		store:  store,
		seed:   seed,
		logger: logger,
	}
}

// Initialize builds the graph schema and seeds an empty graph with the
// sample content. Idempotent.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.initialized {
		return nil
	}

	if err := a.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing graph schema: %w", err)
	}

	counts, err := a.store.NodeCounts(ctx)
	if err != nil {
		return fmt.Errorf("counting graph nodes: %w", err)
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	if total == 0 && a.seed != "" {
		if err := a.IndexContent(ctx, "seed", a.seed, map[string]any{"source": "seed.md"}); err != nil {
			// A failed seed leaves an empty but functional graph.
			a.logger.Error("failed to seed knowledge graph", "error", err)
		}
	}

	a.initialized = true
	a.logger.Info("graph agent initialized", "nodes", total)
	return nil
}

// Invoke extracts concepts from the message, pulls their graph
// neighborhoods, and templates a response.
func (a *Agent) Invoke(ctx context.Context, message string) (string, error) {
	queryConcepts := ExtractConcepts(message)

	// Fall back to name search with the raw words when extraction finds
	// nothing, so lowercase questions still hit the graph.
	var matched []graph.Concept
	if len(queryConcepts) == 0 {
		for _, word := range strings.Fields(message) {
			if len(word) < 3 {
				continue
			}
			found, err := a.store.SearchConcepts(ctx, word, 3)
			if err != nil {
				return "", fmt.Errorf("searching concepts: %w", err)
			}
			matched = append(matched, found...)
			if len(matched) >= 3 {
				break
			}
		}
	} else {
		for _, c := range queryConcepts {
			found, err := a.store.SearchConcepts(ctx, c.Name, 3)
			if err != nil {
				return "", fmt.Errorf("searching concepts: %w", err)
			}
			matched = append(matched, found...)
		}
	}

	if len(matched) == 0 {
		return fmt.Sprintf(
			"I could not find any concepts in my knowledge graph matching: %q. "+
				"Try asking about a specific topic or entity.", message), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Graph RAG Response*\n\n*Your question:* %s\n\n", message)
	fmt.Fprintf(&b, "*Concepts found:* %s\n\n", joinConceptNames(matched))

	b.WriteString("*Related knowledge:*\n")
	seen := make(map[string]struct{})
	for _, c := range matched {
		related, err := a.store.FindRelatedConcepts(ctx, c.ID, 2, 5)
		if err != nil {
			return "", fmt.Errorf("traversing graph from %s: %w", c.ID, err)
		}
		for _, rc := range related {
			if _, dup := seen[rc.ID]; dup {
				continue
			}
			seen[rc.ID] = struct{}{}
			fmt.Fprintf(&b, "• %s (distance %d from %s)\n", rc.Name, rc.Distance, c.Name)
		}
	}
	if len(seen) == 0 {
		b.WriteString("• No related concepts within two hops.\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Info implements agent.Agent.
func (a *Agent) Info() agent.Info {
	return agent.Info{
		Name:        "Graph RAG Bot",
		Description: "Knowledge-graph retrieval over Neo4j with concept extraction",
		Capabilities: []string{
			"graph_traversal",
			"concept_extraction",
			"relationship_mapping",
		},
	}
}

// IndexContent stores a document and its extracted concepts and
// relationships in the graph.
func (a *Agent) IndexContent(ctx context.Context, docID, content string, metadata map[string]any) error {
	if err := a.store.AddDocument(ctx, docID, content, metadata); err != nil {
		return err
	}

	concepts := ExtractConcepts(content)
	for _, c := range concepts {
		if err := a.store.AddConcept(ctx, c); err != nil {
			return err
		}
		if err := a.store.AddRelationship(ctx, docID, c.ID, "MENTIONS", nil); err != nil {
			return err
		}
	}

	for _, rel := range ExtractRelationships(concepts, content) {
		if err := a.store.AddRelationship(ctx, rel.FromID, rel.ToID, rel.Type, rel.Properties); err != nil {
			return err
		}
	}

	a.logger.Info("indexed content into graph",
		"document_id", docID,
		"concepts", len(concepts))
	return nil
}

// Stats implements agent.StatsProvider.
func (a *Agent) Stats(ctx context.Context) map[string]any {
	if !a.initialized {
		return map[string]any{"error": "not initialized"}
	}

	stats := map[string]any{
		"graph_healthy": a.store.HealthCheck(ctx),
	}
	if counts, err := a.store.NodeCounts(ctx); err == nil {
		stats["node_counts"] = counts
	}
	if labels, relTypes, err := a.store.Schema(ctx); err == nil {
		stats["labels"] = labels
		stats["relationship_types"] = relTypes
	}
	return stats
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

func joinConceptNames(concepts []graph.Concept) string {
	names := make([]string, 0, len(concepts))
	seen := make(map[string]struct{})
	for _, c := range concepts {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
