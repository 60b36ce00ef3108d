package graphbot

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/ragbot-io/ragbot/internal/graph"
)

// coOccurrenceWindow is the maximum character distance between two concept
// mentions for them to count as related.
const coOccurrenceWindow = 100

// Pattern-based entity extraction. Deliberately simple: capitalized phrases,
// acronyms, and common tech suffixes cover enough of the corpus to build a
// useful graph without an NLP dependency.
var conceptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`),        // proper-noun pairs
	regexp.MustCompile(`\b[A-Z]{2,}\b`),                      // acronyms
	regexp.MustCompile(`\b\w+(?:AI|ML|API|UI|UX|DB)\b`),      // tech terms
}

// Relationship is an extracted concept co-occurrence, ready to store as a
// graph edge.
type Relationship struct {
	FromID     string
	ToID       string
	Type       string
	Properties map[string]any
}

// ExtractConcepts pulls candidate concepts out of free text. Matches
// shorter than three characters are dropped; results are deduplicated and
// sorted by name so extraction is deterministic.
func ExtractConcepts(text string) []graph.Concept {
	seen := make(map[string]struct{})
	for _, pattern := range conceptPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if len(match) > 2 {
				seen[match] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	concepts := make([]graph.Concept, 0, len(names))
	for _, name := range names {
		concepts = append(concepts, graph.Concept{
			ID:   conceptID(name),
			Name: name,
			Properties: map[string]any{
				"text":   name,
				"source": "pattern_extraction",
			},
		})
	}
	return concepts
}

// ExtractRelationships links concept pairs whose first mentions fall within
// coOccurrenceWindow characters of each other.
func ExtractRelationships(concepts []graph.Concept, text string) []Relationship {
	lower := strings.ToLower(text)

	var relationships []Relationship
	for i, from := range concepts {
		for _, to := range concepts[i+1:] {
			pos1 := strings.Index(lower, strings.ToLower(from.Name))
			pos2 := strings.Index(lower, strings.ToLower(to.Name))
			if pos1 < 0 || pos2 < 0 {
				continue
			}

			distance := pos1 - pos2
			if distance < 0 {
				distance = -distance
			}
			if distance >= coOccurrenceWindow {
				continue
			}

			relationships = append(relationships, Relationship{
				FromID: from.ID,
				ToID:   to.ID,
				Type:   graph.RelTypeRelated,
				Properties: map[string]any{
					"distance": distance,
					"source":   "co_occurrence",
				},
			})
		}
	}
	return relationships
}

// conceptID derives a stable id from the concept text.
func conceptID(name string) string {
	sum := md5.Sum([]byte(name))
	return "concept_" + hex.EncodeToString(sum[:])[:8]
}
