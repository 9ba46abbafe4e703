package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process Store used by the engine's test suites and by
// single-node deployments that do not need durability. It honors the same
// version-condition and expiry semantics as the durable implementations.
type Memory struct {
	clock clockwork.Clock

	mu   sync.RWMutex
	docs map[string]map[string]Document
}

// NewMemory returns an empty in-memory store reading time from clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock: clock,
		docs:  make(map[string]map[string]Document),
	}
}

func (m *Memory) expired(doc Document) bool {
	return doc.ExpiresAt > 0 && doc.ExpiresAt <= m.clock.Now().Unix()
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, collection, key string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[collection][key]
	if !ok || m.expired(doc) {
		return Document{}, false, nil
	}
	return clone(doc), true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(doc); err != nil {
		return Document{}, err
	}
	stored := m.write(doc)
	return clone(stored), nil
}

// TransactPut implements Store.
func (m *Memory) TransactPut(_ context.Context, docs ...Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		if err := m.check(doc); err != nil {
			return err
		}
	}
	for _, doc := range docs {
		m.write(doc)
	}
	return nil
}

// QueryIndex implements Store.
func (m *Memory) QueryIndex(_ context.Context, collection, indexPartition string, descending bool, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.docs[collection] {
		if doc.IndexPartition != indexPartition || m.expired(doc) {
			continue
		}
		out = append(out, clone(doc))
	}

	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].IndexSort > out[j].IndexSort
		}
		return out[i].IndexSort < out[j].IndexSort
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) check(doc Document) error {
	current, ok := m.docs[doc.Collection][doc.Key]
	if ok && m.expired(current) {
		ok = false
	}
	if doc.Version == 0 {
		if ok {
			return ErrVersionConflict
		}
		return nil
	}
	if !ok || current.Version != doc.Version {
		return ErrVersionConflict
	}
	return nil
}

func (m *Memory) write(doc Document) Document {
	stored := clone(doc)
	stored.Version = doc.Version + 1
	if m.docs[doc.Collection] == nil {
		m.docs[doc.Collection] = make(map[string]Document)
	}
	m.docs[doc.Collection][doc.Key] = stored
	return stored
}

func clone(doc Document) Document {
	out := doc
	out.Payload = append([]byte(nil), doc.Payload...)
	return out
}
