package embed

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ragbot-io/ragbot/internal/log"
)

// mockClient implements Client for testing.
type mockClient struct {
	dim       int
	embedErr  error
	callCount int
	lastTexts []string
}

func (m *mockClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.callCount++
	m.lastTexts = texts
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.dim)
		for j := range vec {
			vec[j] = float32(len(texts[i])) / float32(j+1)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *mockClient) Model() string { return "mock-model" }

func TestInitialize_AdoptsActualDimension(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug})

	e := New(&mockClient{dim: 768}, 384, logger)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if e.Dimension() != 768 {
		t.Errorf("Dimension() = %d, want actual model dimension 768", e.Dimension())
	}
	if !strings.Contains(buf.String(), "dimension mismatch") {
		t.Errorf("expected mismatch warning in logs, got %q", buf.String())
	}
}

func TestInitialize_MatchingDimensionNoWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{})

	e := New(&mockClient{dim: 384}, 384, logger)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if e.Dimension() != 384 {
		t.Errorf("Dimension() = %d, want 384", e.Dimension())
	}
	if strings.Contains(buf.String(), "mismatch") {
		t.Errorf("unexpected mismatch warning: %q", buf.String())
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	client := &mockClient{dim: 8}
	e := New(client, 8, log.NewNop())

	for i := 0; i < 3; i++ {
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize() #%d error: %v", i, err)
		}
	}
	if client.callCount != 1 {
		t.Errorf("probe called %d times, want 1", client.callCount)
	}
}

func TestInitialize_ModelError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	e := New(&mockClient{embedErr: wantErr}, 8, log.NewNop())

	if err := e.Initialize(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Initialize() error = %v, want wrapped %v", err, wantErr)
	}
	if e.Initialized() {
		t.Error("embedder marked initialized after failed probe")
	}
}

func TestEmbedText_RequiresInitialization(t *testing.T) {
	e := New(&mockClient{dim: 8}, 8, log.NewNop())

	if _, err := e.EmbedText(context.Background(), "hi"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EmbedText before init: error = %v, want ErrNotInitialized", err)
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"hi"}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EmbedBatch before init: error = %v, want ErrNotInitialized", err)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	client := &mockClient{dim: 4}
	e := New(client, 4, log.NewNop())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	texts := []string{"a", "bb", "ccc"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}

	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		// mockClient encodes len(text) into component 0.
		if vecs[i][0] != float32(len(text)) {
			t.Errorf("vector %d out of order: component 0 = %v, want %d", i, vecs[i][0], len(text))
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	client := &mockClient{dim: 4}
	e := New(client, 4, log.NewNop())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := client.callCount

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) error: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
	if client.callCount != calls {
		t.Error("provider called for empty batch")
	}
}

func TestEmbedText_PropagatesModelError(t *testing.T) {
	client := &mockClient{dim: 4}
	e := New(client, 4, log.NewNop())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("boom")
	client.embedErr = wantErr

	if _, err := e.EmbedText(context.Background(), "hi"); !errors.Is(err, wantErr) {
		t.Errorf("EmbedText error = %v, want wrapped %v", err, wantErr)
	}
}
