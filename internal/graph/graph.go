// Package graph maintains a knowledge graph of documents and concepts in
// Neo4j.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// RelTypeRelated is the co-occurrence relationship between concepts.
const RelTypeRelated = "RELATED_TO"

// writeKeywords matches Cypher clauses that mutate the graph.
var writeKeywords = regexp.MustCompile(`(?i)\b(MERGE|CREATE|SET|DELETE|REMOVE|ADD)\b`)

// relTypePattern restricts relationship types to plain identifiers, since
// Cypher cannot parameterize them.
var relTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsWriteQuery reports whether a Cypher query contains a mutating clause.
// Used to keep read-only surfaces from running writes.
func IsWriteQuery(cypher string) bool {
	return writeKeywords.MatchString(cypher)
}

// Concept is a named entity node in the graph.
type Concept struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// RelatedConcept is a traversal hit: a concept plus its path distance from
// the start node.
type RelatedConcept struct {
	Concept
	Distance int64 `json:"distance"`
}

// Store wraps a Neo4j driver with the graph operations the agents need.
// The driver is safe for concurrent use; Store adds no locking.
type Store struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewStore connects to Neo4j with basic auth. Connectivity is verified
// before the store is returned.
func NewStore(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	return &Store{driver: driver, logger: logger}, nil
}

// Initialize creates the uniqueness constraints and lookup indexes the
// agents rely on. Safe to call on an already-initialized database.
func (s *Store) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		`CREATE CONSTRAINT IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
		`CREATE INDEX IF NOT EXISTS FOR (c:Concept) ON (c.name)`,
	}
	for _, stmt := range statements {
		if _, err := neo4j.ExecuteQuery(ctx, s.driver, stmt, nil, neo4j.EagerResultTransformer); err != nil {
			return fmt.Errorf("creating graph schema: %w", err)
		}
	}
	s.logger.Info("graph schema initialized")
	return nil
}

// AddDocument upserts a document node by id. Metadata is stored as a JSON
// string property, since Neo4j properties cannot hold nested maps.
func (s *Store) AddDocument(ctx context.Context, docID, content string, metadata map[string]any) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling document metadata: %w", err)
	}

	_, err = neo4j.ExecuteQuery(ctx, s.driver, `
		MERGE (d:Document {id: $id})
		SET d.content = $content,
		    d.metadata_json = $metadata_json,
		    d.updated_at = datetime()`,
		map[string]any{
			"id":            docID,
			"content":       content,
			"metadata_json": string(metadataJSON),
		},
		neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("adding document %s to graph: %w", docID, err)
	}
	return nil
}

// AddConcept upserts a concept node by id.
func (s *Store) AddConcept(ctx context.Context, concept Concept) error {
	propertiesJSON, err := json.Marshal(concept.Properties)
	if err != nil {
		return fmt.Errorf("marshaling concept properties: %w", err)
	}

	_, err = neo4j.ExecuteQuery(ctx, s.driver, `
		MERGE (c:Concept {id: $id})
		SET c.name = $name,
		    c.properties_json = $properties_json,
		    c.updated_at = datetime()`,
		map[string]any{
			"id":              concept.ID,
			"name":            concept.Name,
			"properties_json": string(propertiesJSON),
		},
		neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("adding concept %s to graph: %w", concept.ID, err)
	}
	return nil
}

// AddRelationship merges a typed relationship between two existing nodes.
// relType must be a plain identifier; Cypher cannot take it as a parameter.
func (s *Store) AddRelationship(ctx context.Context, fromID, toID, relType string, properties map[string]any) error {
	if !relTypePattern.MatchString(relType) {
		return fmt.Errorf("invalid relationship type %q", relType)
	}
	if properties == nil {
		properties = map[string]any{}
	}

	query := fmt.Sprintf(`
		MATCH (a {id: $from_id}), (b {id: $to_id})
		MERGE (a)-[r:%s]->(b)
		SET r += $properties,
		    r.updated_at = datetime()`, relType)
	_, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{
			"from_id":    fromID,
			"to_id":      toID,
			"properties": properties,
		},
		neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("creating relationship %s -[%s]-> %s: %w", fromID, relType, toID, err)
	}
	return nil
}

// FindRelatedConcepts traverses up to maxDepth hops from a concept and
// returns distinct neighbors ordered by distance then name. Depth is
// inlined because Cypher does not parameterize variable-length bounds.
func (s *Store) FindRelatedConcepts(ctx context.Context, conceptID string, maxDepth, limit int) ([]RelatedConcept, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if limit < 1 {
		limit = 10
	}

	query := fmt.Sprintf(`
		MATCH path = (start:Concept {id: $concept_id})-[*1..%d]-(related:Concept)
		WHERE related.id <> start.id
		RETURN DISTINCT related.id AS id,
		       related.name AS name,
		       related.properties_json AS properties_json,
		       length(path) AS distance
		ORDER BY distance, name
		LIMIT $limit`, maxDepth)
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{
			"concept_id": conceptID,
			"limit":      limit,
		},
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("finding related concepts for %s: %w", conceptID, err)
	}

	related := make([]RelatedConcept, 0, len(result.Records))
	for _, record := range result.Records {
		rc := RelatedConcept{}
		if id, ok := record.Get("id"); ok {
			rc.ID, _ = id.(string)
		}
		if name, ok := record.Get("name"); ok {
			rc.Name, _ = name.(string)
		}
		if distance, ok := record.Get("distance"); ok {
			rc.Distance, _ = distance.(int64)
		}
		if raw, ok := record.Get("properties_json"); ok {
			if str, ok := raw.(string); ok && str != "" {
				_ = json.Unmarshal([]byte(str), &rc.Properties)
			}
		}
		related = append(related, rc)
	}
	return related, nil
}

// SearchConcepts finds concepts whose name contains the query,
// case-insensitively.
func (s *Store) SearchConcepts(ctx context.Context, query string, limit int) ([]Concept, error) {
	if limit < 1 {
		limit = 10
	}

	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (c:Concept)
		WHERE toLower(c.name) CONTAINS toLower($search_text)
		RETURN c.id AS id, c.name AS name, c.properties_json AS properties_json
		ORDER BY c.name
		LIMIT $limit`,
		map[string]any{
			"search_text": query,
			"limit":       limit,
		},
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("searching concepts for %q: %w", query, err)
	}

	concepts := make([]Concept, 0, len(result.Records))
	for _, record := range result.Records {
		c := Concept{}
		if id, ok := record.Get("id"); ok {
			c.ID, _ = id.(string)
		}
		if name, ok := record.Get("name"); ok {
			c.Name, _ = name.(string)
		}
		if raw, ok := record.Get("properties_json"); ok {
			if str, ok := raw.(string); ok && str != "" {
				_ = json.Unmarshal([]byte(str), &c.Properties)
			}
		}
		concepts = append(concepts, c)
	}
	return concepts, nil
}

// NodeCounts returns node counts grouped by label.
func (s *Store) NodeCounts(ctx context.Context) (map[string]int64, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, `
		MATCH (n)
		RETURN labels(n)[0] AS label, count(n) AS count
		ORDER BY count DESC`,
		nil, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("counting graph nodes: %w", err)
	}

	counts := make(map[string]int64)
	for _, record := range result.Records {
		label, _ := record.Get("label")
		count, _ := record.Get("count")
		if name, ok := label.(string); ok && name != "" {
			counts[name], _ = count.(int64)
		}
	}
	return counts, nil
}

// Schema returns the labels and relationship types present in the database.
func (s *Store) Schema(ctx context.Context) (labels, relationshipTypes []string, err error) {
	labelsResult, err := neo4j.ExecuteQuery(ctx, s.driver,
		`CALL db.labels()`, nil, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, nil, fmt.Errorf("listing labels: %w", err)
	}
	for _, record := range labelsResult.Records {
		if v, ok := record.Get("label"); ok {
			if label, ok := v.(string); ok {
				labels = append(labels, label)
			}
		}
	}

	relsResult, err := neo4j.ExecuteQuery(ctx, s.driver,
		`CALL db.relationshipTypes()`, nil, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, nil, fmt.Errorf("listing relationship types: %w", err)
	}
	for _, record := range relsResult.Records {
		if v, ok := record.Get("relationshipType"); ok {
			if relType, ok := v.(string); ok {
				relationshipTypes = append(relationshipTypes, relType)
			}
		}
	}
	return labels, relationshipTypes, nil
}

// HealthCheck reports whether a trivial query round-trips.
func (s *Store) HealthCheck(ctx context.Context) bool {
	_, err := neo4j.ExecuteQuery(ctx, s.driver, `RETURN 1`, nil, neo4j.EagerResultTransformer)
	if err != nil {
		s.logger.Error("graph store health check failed", "error", err)
		return false
	}
	return true
}

// Close shuts down the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
