package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// ErrInvalidTableName is returned when the configured table name is not a
// plain lowercase identifier. Table names are interpolated into SQL, so
// anything else is rejected up front.
var ErrInvalidTableName = errors.New("invalid table name")

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PgxQuerier implements Querier over a single pgx connection.
//
// A *pgx.Conn is not safe for concurrent use; the Store serializes access
// with its mutex, so the querier itself carries no locking.
type PgxQuerier struct {
	conn  *pgx.Conn
	table string
}

// NewPgxQuerier connects to PostgreSQL and returns a querier bound to the
// given table. The table name must be a plain lowercase identifier.
func NewPgxQuerier(ctx context.Context, connString, table string) (*PgxQuerier, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return &PgxQuerier{conn: conn, table: table}, nil
}

// Table returns the table this querier is bound to.
func (q *PgxQuerier) Table() string { return q.table }

// EnsureSchema implements Querier. It creates the vector extension and the
// documents table, then registers the vector type with the connection so
// pgvector.Vector values encode natively.
func (q *PgxQuerier) EnsureSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dim)
	}

	if _, err := q.conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			document_id TEXT UNIQUE NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, q.table, dim)
	if _, err := q.conn.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("creating table %s: %w", q.table, err)
	}

	if err := pgxvector.RegisterTypes(ctx, q.conn); err != nil {
		return fmt.Errorf("registering vector types: %w", err)
	}
	return nil
}

// EnsureIndex implements Querier. The ivfflat index uses cosine distance to
// match the <=> operator used by SearchSimilar.
func (q *PgxQuerier) EnsureIndex(ctx context.Context) error {
	createIndex := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		q.table, q.table)
	if _, err := q.conn.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("creating index on %s: %w", q.table, err)
	}
	return nil
}

// UpsertDocument implements Querier.
func (q *PgxQuerier) UpsertDocument(ctx context.Context, documentID, content string, embedding pgvector.Vector, metadata []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			created_at = now()`, q.table)
	if _, err := q.conn.Exec(ctx, query, documentID, content, embedding, metadata); err != nil {
		return fmt.Errorf("upserting document %s: %w", documentID, err)
	}
	return nil
}

// SearchSimilar implements Querier. Rows come back ordered by increasing
// cosine distance; the distance filter is inclusive.
func (q *PgxQuerier) SearchSimilar(ctx context.Context, embedding pgvector.Vector, k int, maxDistance float64) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT document_id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE embedding IS NOT NULL
		  AND embedding <=> $1 <= $2
		ORDER BY embedding <=> $1
		LIMIT $3`, q.table)

	rows, err := q.conn.Query(ctx, query, embedding, maxDistance, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.DocumentID, &row.Content, &row.Metadata, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// CountDocuments implements Querier.
func (q *PgxQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, q.table)
	if err := q.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// DeleteDocument implements Querier.
func (q *PgxQuerier) DeleteDocument(ctx context.Context, documentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, q.table)
	if _, err := q.conn.Exec(ctx, query, documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}

// Ping implements Querier.
func (q *PgxQuerier) Ping(ctx context.Context) error {
	return q.conn.Ping(ctx)
}

// Close implements Querier.
func (q *PgxQuerier) Close(ctx context.Context) error {
	return q.conn.Close(ctx)
}
