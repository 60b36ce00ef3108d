// Package vectorstore persists embedded documents in PostgreSQL + pgvector
// and retrieves them by threshold-filtered cosine similarity.
package vectorstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ragbot-io/ragbot/internal/document"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "rag_documents"

// defaultOpTimeout bounds every database operation so a stuck connection
// cannot block a request handler indefinitely.
const defaultOpTimeout = 10 * time.Second

// Row is a raw search row as returned by a Querier. Metadata is the stored
// JSON, decoded by the Store.
type Row struct {
	DocumentID string
	Content    string
	Metadata   []byte
	Similarity float64
}

// SearchResult is a decoded similarity-search hit. Similarity is
// 1 - cosine_distance: a ranking signal, not a calibrated probability.
type SearchResult struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// Querier defines the database operations the Store needs. Following Go
// practice the interface is defined by the consumer; PgxQuerier is the
// production implementation, tests substitute a mock.
type Querier interface {
	// EnsureSchema creates the pgvector extension and the documents table
	// with the given embedding dimension, if missing.
	EnsureSchema(ctx context.Context, dim int) error

	// EnsureIndex creates the approximate-nearest-neighbor index if missing.
	EnsureIndex(ctx context.Context) error

	// UpsertDocument inserts or fully replaces a document by logical id,
	// refreshing its creation timestamp on conflict.
	UpsertDocument(ctx context.Context, documentID, content string, embedding pgvector.Vector, metadata []byte) error

	// SearchSimilar returns up to k rows with cosine distance <= maxDistance,
	// ordered by increasing distance.
	SearchSimilar(ctx context.Context, embedding pgvector.Vector, k int, maxDistance float64) ([]Row, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int64, error)

	// DeleteDocument deletes by logical id; deleting a missing id is not an
	// error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Ping performs a trivial round-trip query.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Store is a vector document store.
//
// All operations serialize through a mutex: at most one database operation
// is in flight per Store instance, matching the single-connection model of
// PgxQuerier. Concurrent callers block rather than interleave. Separate
// Store instances (one per logical table) do not share the lock.
type Store struct {
	mu        sync.Mutex
	q         Querier
	dim       int
	opTimeout time.Duration
	logger    *slog.Logger
}

// New creates a Store over the given querier. dim is the embedding
// dimension used when the backing table has to be created.
func New(q Querier, dim int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		q:         q,
		dim:       dim,
		opTimeout: defaultOpTimeout,
		logger:    logger,
	}
}

// Initialize ensures the backing table and similarity index exist.
// Index creation failures are tolerated and logged (ivfflat builds can fail
// on an empty table); a schema failure returns false and the store must be
// treated as unavailable, not crash the process.
func (s *Store) Initialize(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.q.EnsureSchema(ctx, s.dim); err != nil {
		s.logger.Error("failed to initialize vector store schema", "error", err)
		return false
	}

	if err := s.q.EnsureIndex(ctx); err != nil {
		s.logger.Warn("could not create vector index (will retry later)", "error", err)
	}

	s.logger.Info("vector store initialized", "dimension", s.dim)
	return true
}

// AddDocuments upserts the given documents by logical id. Documents without
// an embedding are skipped with a warning; the call still succeeds. Returns
// false only on a connection/SQL-level failure.
func (s *Store) AddDocuments(ctx context.Context, docs []document.Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			s.logger.Warn("document has no embedding, skipping", "document_id", doc.ID)
			continue
		}

		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			s.logger.Error("failed to marshal document metadata", "document_id", doc.ID, "error", err)
			return false
		}

		// The timeout covers one statement, not the whole batch: a large
		// ingest must not run out of budget on its later documents.
		if err := s.upsertOne(ctx, doc.ID, doc.Content, doc.Embedding, metadata); err != nil {
			s.logger.Error("failed to upsert document", "document_id", doc.ID, "error", err)
			return false
		}
	}

	s.logger.Info("added documents to vector store", "count", len(docs))
	return true
}

// upsertOne runs a single upsert under its own operation timeout. Caller
// holds s.mu.
func (s *Store) upsertOne(ctx context.Context, id, content string, embedding []float32, metadata []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.q.UpsertDocument(ctx, id, content, pgvector.NewVector(embedding), metadata)
}

// SimilaritySearch returns up to k stored documents whose cosine similarity
// to the query embedding is at least threshold (inclusive), ordered by
// descending similarity. No match yields an empty result, and so does a
// database failure (logged): retrieval degrades, it does not crash requests.
func (s *Store) SimilaritySearch(ctx context.Context, queryEmbedding []float32, k int, threshold float64) []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	// similarity >= threshold  <=>  distance <= 1 - threshold
	maxDistance := 1.0 - threshold

	rows, err := s.q.SearchSimilar(ctx, pgvector.NewVector(queryEmbedding), k, maxDistance)
	if err != nil {
		s.logger.Error("similarity search failed", "error", err)
		return nil
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, SearchResult{
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Metadata:   decodeMetadata(row.Metadata, row.DocumentID, s.logger),
			Similarity: row.Similarity,
		})
	}

	s.logger.Debug("similarity search complete", "found", len(results), "threshold", threshold)
	return results
}

// DocumentCount returns the number of stored documents, or 0 on failure.
func (s *Store) DocumentCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	count, err := s.q.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("failed to count documents", "error", err)
		return 0
	}
	return int(count)
}

// DeleteDocument removes a document by logical id. Idempotent: deleting a
// nonexistent id succeeds. Returns false only on a database failure.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.q.DeleteDocument(ctx, documentID); err != nil {
		s.logger.Error("failed to delete document", "document_id", documentID, "error", err)
		return false
	}
	s.logger.Info("deleted document", "document_id", documentID)
	return true
}

// HealthCheck reports whether a trivial round-trip query succeeds.
// Higher layers use it to gate bot presence.
func (s *Store) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.q.Ping(ctx); err != nil {
		s.logger.Error("vector store health check failed", "error", err)
		return false
	}
	return true
}

// Close releases the underlying database connection.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Close(ctx)
}

// decodeMetadata parses stored metadata JSON, treating malformed data as
// empty metadata rather than failing the row.
func decodeMetadata(raw []byte, documentID string, logger *slog.Logger) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		logger.Warn("failed to parse document metadata", "document_id", documentID, "error", err)
		return map[string]any{}
	}
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
