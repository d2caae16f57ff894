// Package directory is the narrow document-store contract used by the
// repositories. Documents are flat field maps addressed by (collection, key);
// lookups are equality-only so every backend can serve them from an index.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by GetByKey, Merge and Delete for a missing key.
	ErrNotFound = errors.New("directory: document not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("directory: duplicate key")
)

// Document is one stored record. Values are strings, bools, numbers,
// time.Time, string slices or nil.
type Document map[string]any

// Filter is a single field equality condition.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// IndexSpec declares an index over one or more fields of a collection.
type IndexSpec struct {
	Name       string
	Collection string
	Fields     []string
	Unique     bool
}

// Directory is the document store collaborator.
type Directory interface {
	// Insert creates or replaces the document stored under key.
	Insert(ctx context.Context, collection, key string, doc Document) error
	// Merge sets the given fields on an existing document.
	Merge(ctx context.Context, collection, key string, fields Document) error
	GetByKey(ctx context.Context, collection, key string) (Document, error)
	// QueryEquals returns documents matching every filter.
	QueryEquals(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Delete(ctx context.Context, collection, key string) error
	EnsureIndexes(ctx context.Context, specs ...IndexSpec) error
	Ping(ctx context.Context) error
}

// String returns the string value of field or "".
func (d Document) String(field string) string {
	if v, ok := d[field].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool value of field or false.
func (d Document) Bool(field string) bool {
	if v, ok := d[field].(bool); ok {
		return v
	}
	return false
}

// Int returns the integer value of field, accepting the numeric types the
// backends decode into.
func (d Document) Int(field string) int {
	switch v := d[field].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Strings returns a string slice stored under field.
func (d Document) Strings(field string) []string {
	switch v := d[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns the time stored under field. JSON backends hand back RFC 3339
// strings, mongo hands back its own DateTime which implements Time().
func (d Document) Time(field string) time.Time {
	switch v := d[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	case interface{ Time() time.Time }:
		return v.Time()
	}
	return time.Time{}
}

// TimePtr is Time for optional fields.
func (d Document) TimePtr(field string) *time.Time {
	t := d.Time(field)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func validateKey(collection, key string) error {
	if collection == "" {
		return errors.New("directory: collection required")
	}
	if key == "" {
		return fmt.Errorf("directory: key required for %s", collection)
	}
	return nil
}
