package graphbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragbot-io/ragbot/internal/graph"
	"github.com/ragbot-io/ragbot/internal/log"
)

// mockGraphStore implements GraphStore.
type mockGraphStore struct {
	initErr       error
	nodeCounts    map[string]int64
	concepts      map[string][]graph.Concept        // search query -> hits
	related       map[string][]graph.RelatedConcept // concept id -> neighbors
	healthy       bool
	addedDocs     []string
	addedConcepts []graph.Concept
	addedRels     []string
	closed        bool
}

func (m *mockGraphStore) Initialize(_ context.Context) error { return m.initErr }

func (m *mockGraphStore) AddDocument(_ context.Context, docID, _ string, _ map[string]any) error {
	m.addedDocs = append(m.addedDocs, docID)
	return nil
}

func (m *mockGraphStore) AddConcept(_ context.Context, c graph.Concept) error {
	m.addedConcepts = append(m.addedConcepts, c)
	return nil
}

func (m *mockGraphStore) AddRelationship(_ context.Context, fromID, toID, relType string, _ map[string]any) error {
	m.addedRels = append(m.addedRels, fromID+"-["+relType+"]->"+toID)
	return nil
}

func (m *mockGraphStore) FindRelatedConcepts(_ context.Context, conceptID string, _, _ int) ([]graph.RelatedConcept, error) {
	return m.related[conceptID], nil
}

func (m *mockGraphStore) SearchConcepts(_ context.Context, query string, _ int) ([]graph.Concept, error) {
	return m.concepts[query], nil
}

func (m *mockGraphStore) NodeCounts(_ context.Context) (map[string]int64, error) {
	if m.nodeCounts == nil {
		return map[string]int64{}, nil
	}
	return m.nodeCounts, nil
}

func (m *mockGraphStore) Schema(_ context.Context) ([]string, []string, error) {
	return []string{"Document", "Concept"}, []string{"MENTIONS", "RELATED_TO"}, nil
}

func (m *mockGraphStore) HealthCheck(_ context.Context) bool { return m.healthy }
func (m *mockGraphStore) Close(_ context.Context) error      { m.closed = true; return nil }

func TestInitialize_SeedsEmptyGraph(t *testing.T) {
	store := &mockGraphStore{healthy: true}
	a := New(store, "Healthee Platform offers the Zoe AI assistant.", log.NewNop())

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if len(store.addedDocs) != 1 || store.addedDocs[0] != "seed" {
		t.Errorf("seed document not indexed: %v", store.addedDocs)
	}
	if len(store.addedConcepts) == 0 {
		t.Error("no concepts indexed from seed content")
	}
	// Every concept gets a MENTIONS edge from the document.
	mentions := 0
	for _, rel := range store.addedRels {
		if strings.Contains(rel, "[MENTIONS]") {
			mentions++
		}
	}
	if mentions != len(store.addedConcepts) {
		t.Errorf("%d MENTIONS edges for %d concepts", mentions, len(store.addedConcepts))
	}
}

func TestInitialize_SkipsSeedWhenPopulated(t *testing.T) {
	store := &mockGraphStore{healthy: true, nodeCounts: map[string]int64{"Document": 3}}
	a := New(store, "seed content", log.NewNop())

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if len(store.addedDocs) != 0 {
		t.Error("seeded a populated graph")
	}
}

func TestInitialize_SchemaFailure(t *testing.T) {
	a := New(&mockGraphStore{initErr: errors.New("no constraint support")}, "", log.NewNop())
	if err := a.Initialize(context.Background()); err == nil {
		t.Error("Initialize() succeeded despite schema failure")
	}
}

func TestInvoke_TemplatesNeighborhood(t *testing.T) {
	store := &mockGraphStore{
		healthy:    true,
		nodeCounts: map[string]int64{"Concept": 2},
		concepts: map[string][]graph.Concept{
			"Zoe Assistant": {{ID: "concept_1", Name: "Zoe Assistant"}},
		},
		related: map[string][]graph.RelatedConcept{
			"concept_1": {
				{Concept: graph.Concept{ID: "concept_2", Name: "Healthee Platform"}, Distance: 1},
			},
		},
	}
	a := New(store, "", log.NewNop())
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := a.Invoke(context.Background(), "Tell me about Zoe Assistant")
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if !strings.Contains(got, "Zoe Assistant") {
		t.Errorf("response missing matched concept: %q", got)
	}
	if !strings.Contains(got, "Healthee Platform") {
		t.Errorf("response missing related concept: %q", got)
	}
	if !strings.Contains(got, "distance 1") {
		t.Errorf("response missing traversal distance: %q", got)
	}
}

func TestInvoke_NoMatches(t *testing.T) {
	store := &mockGraphStore{healthy: true, nodeCounts: map[string]int64{"Concept": 1}}
	a := New(store, "", log.NewNop())
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := a.Invoke(context.Background(), "something entirely unrelated")
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if !strings.Contains(got, "could not find any concepts") {
		t.Errorf("response %q missing no-match message", got)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := &mockGraphStore{healthy: true, nodeCounts: map[string]int64{"Concept": 4}}
	a := New(store, "", log.NewNop())

	if a.HealthCheck(context.Background()) {
		t.Error("healthy before initialization")
	}

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !a.HealthCheck(context.Background()) {
		t.Error("unhealthy after initialization")
	}

	stats := a.Stats(context.Background())
	if stats["graph_healthy"] != true {
		t.Errorf("graph_healthy = %v", stats["graph_healthy"])
	}
	counts, ok := stats["node_counts"].(map[string]int64)
	if !ok || counts["Concept"] != 4 {
		t.Errorf("node_counts = %v", stats["node_counts"])
	}
}

func TestClose(t *testing.T) {
	store := &mockGraphStore{healthy: true, nodeCounts: map[string]int64{"Concept": 1}}
	a := New(store, "", log.NewNop())
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
