package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// IDPattern matches valid DefraDB document IDs (bae-<uuid> format) and simple
// identifiers. Used to validate IDs before interpolation to prevent GraphQL
// injection.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks if a string is safe to use as a document ID in GraphQL
// queries. Returns an error if the ID contains characters that could be used
// for injection.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// SafeID validates an ID and returns it if safe, or an error.
func SafeID(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// parseString extracts a string field from a raw document.
func parseString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// parseInt extracts an integer field from a raw document.
// DefraDB returns numbers as float64 via JSON.
func parseInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// parseBool extracts a boolean field from a raw document.
func parseBool(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

// parseTime extracts an RFC3339 timestamp field from a raw document.
// Returns the zero time if absent or malformed.
func parseTime(doc map[string]any, key string) time.Time {
	s, ok := doc[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTimePtr extracts an optional RFC3339 timestamp field.
func parseTimePtr(doc map[string]any, key string) *time.Time {
	t := parseTime(doc, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseStrings extracts a string array field from a raw document.
func parseStrings(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// docsFrom extracts the document list for a collection from a response.
func docsFrom(resp *GQLResponse, collection string) []map[string]any {
	raw, ok := resp.Data[collection].([]any)
	if !ok {
		return nil
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		if doc, ok := d.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// joinFields renders a GraphQL field selection list.
func joinFields(fields []string) string {
	return strings.Join(fields, " ")
}
