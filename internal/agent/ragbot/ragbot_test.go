package ragbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragbot-io/ragbot/internal/document"
	"github.com/ragbot-io/ragbot/internal/log"
	"github.com/ragbot-io/ragbot/internal/vectorstore"
)

// mockProcessor implements Processor.
type mockProcessor struct {
	initErr    error
	processErr error
	docsPerRun int
	initCalls  int
}

func (m *mockProcessor) Initialize(_ context.Context) error {
	m.initCalls++
	return m.initErr
}

func (m *mockProcessor) ProcessText(_ context.Context, text string, metadata map[string]any) ([]document.Document, error) {
	if m.processErr != nil {
		return nil, m.processErr
	}
	docs := make([]document.Document, m.docsPerRun)
	for i := range docs {
		docs[i] = document.Document{
			ID:        "chunk",
			Content:   text,
			Metadata:  metadata,
			Embedding: []float32{1, 0},
		}
	}
	return docs, nil
}

func (m *mockProcessor) Dimension() int { return 2 }

// mockEmbedder implements Embedder.
type mockEmbedder struct {
	embedErr error
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{1, 0}, nil
}

// mockStore implements Store.
type mockStore struct {
	initOK      bool
	healthy     bool
	count       int
	results     []vectorstore.SearchResult
	added       [][]document.Document
	lastK       int
	lastThresh  float64
	searchCalls int
	closed      bool
}

func (m *mockStore) Initialize(_ context.Context) bool { return m.initOK }

func (m *mockStore) AddDocuments(_ context.Context, docs []document.Document) bool {
	m.added = append(m.added, docs)
	m.count += len(docs)
	return true
}

func (m *mockStore) SimilaritySearch(_ context.Context, _ []float32, k int, threshold float64) []vectorstore.SearchResult {
	m.searchCalls++
	m.lastK = k
	m.lastThresh = threshold
	return m.results
}

func (m *mockStore) DocumentCount(_ context.Context) int  { return m.count }
func (m *mockStore) HealthCheck(_ context.Context) bool   { return m.healthy }
func (m *mockStore) Close(_ context.Context) error        { m.closed = true; return nil }

func newTestAgent(store *mockStore) *Agent {
	return New(&mockProcessor{docsPerRun: 2}, &mockEmbedder{}, store, 0.3, log.NewNop())
}

func TestInitialize_SeedsEmptyStore(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true}
	a := newTestAgent(store)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if len(store.added) != 1 {
		t.Fatalf("seed added %d batches, want 1", len(store.added))
	}
	if src := store.added[0][0].Metadata["source"]; src != "seed.md" {
		t.Errorf("seed source = %v, want seed.md", src)
	}
}

func TestInitialize_SkipsSeedWhenPopulated(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 5}
	a := newTestAgent(store)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if len(store.added) != 0 {
		t.Error("seeded a non-empty knowledge base")
	}
}

func TestInitialize_ProcessorFailure(t *testing.T) {
	a := New(&mockProcessor{initErr: errors.New("no model")}, &mockEmbedder{}, &mockStore{initOK: true}, 0.3, log.NewNop())

	if err := a.Initialize(context.Background()); err == nil {
		t.Error("Initialize() succeeded despite processor failure")
	}
}

func TestInitialize_StoreFailure(t *testing.T) {
	a := newTestAgent(&mockStore{initOK: false})

	if err := a.Initialize(context.Background()); err == nil {
		t.Error("Initialize() succeeded despite store failure")
	}
}

func TestInvoke_NoHits(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 7}
	a := newTestAgent(store)
	// Pre-populated store so Initialize does not seed.
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := a.Invoke(context.Background(), "unrelated question")
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if !strings.Contains(got, "No relevant documents") {
		t.Errorf("response %q missing no-documents message", got)
	}
	if !strings.Contains(got, "7 documents") {
		t.Errorf("response %q does not report the document count", got)
	}
}

func TestInvoke_TemplatesHitsWithSources(t *testing.T) {
	store := &mockStore{
		initOK:  true,
		healthy: true,
		count:   3,
		results: []vectorstore.SearchResult{
			{DocumentID: "a", Content: "Zoe is the AI assistant.", Similarity: 0.91,
				Metadata: map[string]any{"source": "seed.md"}},
			{DocumentID: "b", Content: "Other content.", Similarity: 0.45,
				Metadata: map[string]any{}},
		},
	}
	a := newTestAgent(store)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := a.Invoke(context.Background(), "who is zoe?")
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if !strings.Contains(got, "found 2 relevant documents") {
		t.Errorf("response missing document count: %q", got)
	}
	if !strings.Contains(got, "who is zoe?") {
		t.Errorf("response does not echo the question: %q", got)
	}
	if !strings.Contains(got, "Zoe is the AI assistant.") {
		t.Errorf("response missing best-match content: %q", got)
	}
	if !strings.Contains(got, "seed.md (relevance: 91.0%)") {
		t.Errorf("response missing source with similarity percentage: %q", got)
	}
	if !strings.Contains(got, "unknown (relevance: 45.0%)") {
		t.Errorf("response missing unknown-source fallback: %q", got)
	}
	if store.lastK != searchK {
		t.Errorf("searched k = %d, want %d", store.lastK, searchK)
	}
	if store.lastThresh != 0.3 {
		t.Errorf("searched threshold = %v, want 0.3", store.lastThresh)
	}
}

func TestInvoke_EmbedFailure(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 1}
	a := New(&mockProcessor{docsPerRun: 1}, &mockEmbedder{embedErr: errors.New("model down")}, store, 0.3, log.NewNop())
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Invoke(context.Background(), "q"); err == nil {
		t.Error("Invoke() succeeded despite embedding failure")
	}
	if store.searchCalls != 0 {
		t.Error("searched despite failed query embedding")
	}
}

func TestAddContent(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 1}
	a := newTestAgent(store)

	// Not initialized yet.
	if a.AddContent(context.Background(), "text", nil) {
		t.Error("AddContent succeeded before initialization")
	}

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !a.AddContent(context.Background(), "new text", map[string]any{"source": "manual"}) {
		t.Error("AddContent failed after initialization")
	}
	if len(store.added) != 1 {
		t.Fatalf("added %d batches, want 1", len(store.added))
	}
}

func TestSearchKnowledgeBase(t *testing.T) {
	store := &mockStore{
		initOK: true, healthy: true, count: 1,
		results: []vectorstore.SearchResult{{DocumentID: "a", Content: "x", Similarity: 0.8}},
	}
	a := newTestAgent(store)

	if got := a.SearchKnowledgeBase(context.Background(), "q", 5); got != nil {
		t.Error("SearchKnowledgeBase returned results before initialization")
	}

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := a.SearchKnowledgeBase(context.Background(), "q", 5)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if store.lastK != 5 {
		t.Errorf("searched k = %d, want 5", store.lastK)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 4}
	a := newTestAgent(store)

	if a.HealthCheck(context.Background()) {
		t.Error("healthy before initialization")
	}
	if stats := a.Stats(context.Background()); stats["error"] == nil {
		t.Error("Stats before initialization missing error marker")
	}

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !a.HealthCheck(context.Background()) {
		t.Error("unhealthy after initialization with healthy store")
	}

	stats := a.Stats(context.Background())
	if stats["document_count"] != 4 {
		t.Errorf("document_count = %v, want 4", stats["document_count"])
	}
	if stats["embedding_dimension"] != 2 {
		t.Errorf("embedding_dimension = %v, want 2", stats["embedding_dimension"])
	}
	if stats["similarity_threshold"] != 0.3 {
		t.Errorf("similarity_threshold = %v, want 0.3", stats["similarity_threshold"])
	}
}

func TestClose(t *testing.T) {
	store := &mockStore{initOK: true, healthy: true, count: 1}
	a := newTestAgent(store)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !store.closed {
		t.Error("store not closed")
	}
	if a.HealthCheck(context.Background()) {
		t.Error("healthy after Close")
	}
}
