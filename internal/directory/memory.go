package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Directory used in development and tests. Declared
// indexes are maintained as hash maps so equality lookups on indexed fields
// never walk the collection; unique indexes are enforced on write.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	indexes     map[string][]*memIndex
}

type memIndex struct {
	spec    IndexSpec
	entries map[string]map[string]struct{}
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		indexes:     make(map[string][]*memIndex),
	}
}

func (m *Memory) Insert(ctx context.Context, collection, key string, doc Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(collection, key, doc.Clone())
}

func (m *Memory) Merge(ctx context.Context, collection, key string, fields Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.collections[collection][key]
	if !ok {
		return ErrNotFound
	}
	merged := existing.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	return m.put(collection, key, merged)
}

func (m *Memory) GetByKey(ctx context.Context, collection, key string) (Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *Memory) QueryEquals(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.collections[collection]
	var candidates []string
	if idx := m.indexFor(collection, filters); idx != nil {
		for key := range idx.entries[indexKeyFromFilters(idx.spec, filters)] {
			candidates = append(candidates, key)
		}
	} else {
		for key := range docs {
			candidates = append(candidates, key)
		}
	}
	sort.Strings(candidates)

	out := make([]Document, 0, len(candidates))
	for _, key := range candidates {
		doc := docs[key]
		if matches(doc, filters) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return ErrNotFound
	}
	m.unindex(collection, key, doc)
	delete(m.collections[collection], key)
	return nil
}

func (m *Memory) EnsureIndexes(ctx context.Context, specs ...IndexSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, spec := range specs {
		if m.hasIndex(spec) {
			continue
		}
		idx := &memIndex{spec: spec, entries: make(map[string]map[string]struct{})}
		for key, doc := range m.collections[spec.Collection] {
			ik, ok := indexKey(spec, doc)
			if !ok {
				continue
			}
			if spec.Unique && len(idx.entries[ik]) > 0 {
				return fmt.Errorf("%w: cannot build unique index %s", ErrDuplicate, spec.Name)
			}
			idx.add(ik, key)
		}
		m.indexes[spec.Collection] = append(m.indexes[spec.Collection], idx)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// put must be called with the write lock held.
func (m *Memory) put(collection, key string, doc Document) error {
	for _, idx := range m.indexes[collection] {
		if !idx.spec.Unique {
			continue
		}
		ik, ok := indexKey(idx.spec, doc)
		if !ok {
			continue
		}
		for owner := range idx.entries[ik] {
			if owner != key {
				return ErrDuplicate
			}
		}
	}

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	if old, ok := m.collections[collection][key]; ok {
		m.unindex(collection, key, old)
	}
	m.collections[collection][key] = doc
	for _, idx := range m.indexes[collection] {
		if ik, ok := indexKey(idx.spec, doc); ok {
			idx.add(ik, key)
		}
	}
	return nil
}

func (m *Memory) unindex(collection, key string, doc Document) {
	for _, idx := range m.indexes[collection] {
		ik, ok := indexKey(idx.spec, doc)
		if !ok {
			continue
		}
		delete(idx.entries[ik], key)
		if len(idx.entries[ik]) == 0 {
			delete(idx.entries, ik)
		}
	}
}

func (m *Memory) hasIndex(spec IndexSpec) bool {
	for _, idx := range m.indexes[spec.Collection] {
		if idx.spec.Name == spec.Name {
			return true
		}
	}
	return false
}

// indexFor returns an index whose fields are exactly covered by filters.
func (m *Memory) indexFor(collection string, filters []Filter) *memIndex {
	if len(filters) == 0 {
		return nil
	}
	fields := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		fields[f.Field] = struct{}{}
	}
	for _, idx := range m.indexes[collection] {
		covered := true
		for _, field := range idx.spec.Fields {
			if _, ok := fields[field]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return idx
		}
	}
	return nil
}

func (i *memIndex) add(ik, key string) {
	if i.entries[ik] == nil {
		i.entries[ik] = make(map[string]struct{})
	}
	i.entries[ik][key] = struct{}{}
}

// indexKey builds the composite key for doc. Documents missing an indexed
// field, or holding an empty value, are left out of the index.
func indexKey(spec IndexSpec, doc Document) (string, bool) {
	parts := make([]string, 0, len(spec.Fields))
	for _, field := range spec.Fields {
		v, ok := doc[field]
		if !ok || v == nil || v == "" {
			return "", false
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "\x1f"), true
}

func indexKeyFromFilters(spec IndexSpec, filters []Filter) string {
	doc := make(Document, len(filters))
	for _, f := range filters {
		doc[f.Field] = f.Value
	}
	ik, _ := indexKey(spec, doc)
	return ik
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(doc[f.Field]) != fmt.Sprint(f.Value) {
			return false
		}
		if _, ok := doc[f.Field]; !ok && f.Value != nil {
			return false
		}
	}
	return true
}
