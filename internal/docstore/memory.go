package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryDatabase keeps documents in process memory. It is intended for
// development and tests.
type MemoryDatabase struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemory() *MemoryDatabase {
	return &MemoryDatabase{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryDatabase) Collection(name string) Collection {
	return m.collection(name)
}

func (m *MemoryDatabase) collection(name string) *memoryCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &memoryCollection{}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryDatabase) EnsureIndex(_ context.Context, collection string, index Index) error {
	if len(index.Keys) == 0 {
		return errors.New("index requires at least one key")
	}
	if !index.Unique {
		return nil
	}
	c := m.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unique = append(c.unique, append([]string(nil), index.Keys...))
	return nil
}

func (m *MemoryDatabase) Ping(context.Context) error {
	return nil
}

func (m *MemoryDatabase) Close(context.Context) error {
	return nil
}

type memoryCollection struct {
	mu     sync.RWMutex
	docs   []map[string]any
	unique [][]string
}

func (c *memoryCollection) InsertOne(_ context.Context, doc any) error {
	m, err := toMap(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.violatesUnique(m, -1) {
		return ErrDuplicate
	}
	c.docs = append(c.docs, m)
	return nil
}

func (c *memoryCollection) FindOne(_ context.Context, filter Filter, out any, omit ...string) error {
	c.mu.RLock()
	idx := c.first(filter)
	if idx < 0 {
		c.mu.RUnlock()
		return ErrNotFound
	}
	doc := copyMap(c.docs[idx])
	c.mu.RUnlock()

	for _, field := range omit {
		delete(doc, field)
	}
	return fromJSON(doc, out)
}

func (c *memoryCollection) Find(_ context.Context, filter Filter, opts FindOptions, out any) error {
	c.mu.RLock()
	matched := make([]map[string]any, 0)
	for _, doc := range c.docs {
		if matches(doc, filter) {
			matched = append(matched, copyMap(doc))
		}
	}
	c.mu.RUnlock()

	if opts.SortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			cmp := compareValues(matched[i][opts.SortField], matched[j][opts.SortField])
			if opts.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return fromJSON(matched, out)
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter Filter, set Fields) (int64, error) {
	patch, err := toMap(set)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.first(filter)
	if idx < 0 {
		return 0, nil
	}
	updated := copyMap(c.docs[idx])
	for key, value := range patch {
		updated[key] = value
	}
	if c.violatesUnique(updated, idx) {
		return 0, ErrDuplicate
	}
	c.docs[idx] = updated
	return 1, nil
}

func (c *memoryCollection) DeleteOne(_ context.Context, filter Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.first(filter)
	if idx < 0 {
		return 0, nil
	}
	c.docs = append(c.docs[:idx], c.docs[idx+1:]...)
	return 1, nil
}

func (c *memoryCollection) first(filter Filter) int {
	for i, doc := range c.docs {
		if matches(doc, filter) {
			return i
		}
	}
	return -1
}

// violatesUnique must be called with c.mu held.
func (c *memoryCollection) violatesUnique(doc map[string]any, skip int) bool {
	for _, keys := range c.unique {
		for i, other := range c.docs {
			if i == skip {
				continue
			}
			same := true
			for _, key := range keys {
				value, ok := doc[key]
				if !ok || fmt.Sprint(value) != fmt.Sprint(other[key]) {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

func matches(doc map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := doc[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func toMap(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if m == nil {
		return nil, errors.New("document must be an object")
	}
	return m, nil
}

func fromJSON(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
