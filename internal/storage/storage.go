// Package storage implements the in-memory collection engine. Two instances
// exist at runtime: a public one for application data and a protected one for
// users and sessions. Both are safe for concurrent use and never hand out
// references to internal state.
package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playbase/playbase/internal/errors"
)

// Record is a stored document: user-defined properties plus the system
// properties stamped by the engine.
type Record = map[string]interface{}

// System property names. These are assigned by the engine and never accepted
// from client payloads.
const (
	FieldID        = "_id"
	FieldOwnerID   = "_ownerId"
	FieldCreatedOn = "_createdOn"
	FieldUpdatedOn = "_updatedOn"
	FieldDeletedOn = "_deletedOn"
)

var systemFields = []string{FieldID, FieldOwnerID, FieldCreatedOn, FieldUpdatedOn}

// Engine is a thread-safe in-memory collection store. Collections are created
// lazily on first write. A single engine-wide lock keeps read-then-mutate
// sequences atomic.
type Engine struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// NewEngine creates an engine populated with the given seed data. Seed records
// are deep-copied in, so the caller's structures stay untouched.
func NewEngine(seed map[string]map[string]Record) *Engine {
	e := &Engine{collections: make(map[string]map[string]Record)}
	for name, records := range seed {
		collection := make(map[string]Record, len(records))
		for id, record := range records {
			collection[id] = deepCopyRecord(record)
		}
		e.collections[name] = collection
	}
	return e
}

// Collections returns the names of all known collections.
func (e *Engine) Collections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	return names
}

// List returns all records in a collection with _id attached.
func (e *Engine) List(collection string) ([]Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}

	result := make([]Record, 0, len(target))
	for id, record := range target {
		copied := deepCopyRecord(record)
		copied[FieldID] = id
		result = append(result, copied)
	}
	return result, nil
}

// Get returns a single record by ID.
func (e *Engine) Get(collection, id string) (Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}
	record, ok := target[id]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Entry does not exist: %s", id))
	}

	copied := deepCopyRecord(record)
	copied[FieldID] = id
	return copied, nil
}

// Add stores a new record. Client-supplied system properties are stripped,
// a fresh collision-checked ID is assigned and _ownerId/_createdOn stamped.
// The stored copy is returned with _id attached.
func (e *Engine) Add(collection, ownerID string, data Record) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record := stripSystemFields(data)
	if ownerID != "" {
		record[FieldOwnerID] = ownerID
	}
	record[FieldCreatedOn] = nowMillis()

	target, ok := e.collections[collection]
	if !ok {
		target = make(map[string]Record)
		e.collections[collection] = target
	}

	id := uuid.NewString()
	for _, exists := target[id]; exists; _, exists = target[id] {
		id = uuid.NewString()
	}

	target[id] = record

	copied := deepCopyRecord(record)
	copied[FieldID] = id
	return copied, nil
}

// Set replaces a record wholesale. The four system properties are carried
// over from the existing record regardless of the payload, and _updatedOn is
// stamped fresh.
func (e *Engine) Set(collection, id string, data Record) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}
	existing, ok := target[id]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Entry does not exist: %s", id))
	}

	record := stripSystemFields(data)
	for _, field := range systemFields {
		if value, ok := existing[field]; ok {
			record[field] = deepCopyValue(value)
		}
	}
	record[FieldUpdatedOn] = nowMillis()

	target[id] = record

	copied := deepCopyRecord(record)
	copied[FieldID] = id
	return copied, nil
}

// Merge shallow-merges data onto a copy of the existing record. System
// properties in the payload are ignored, not merged.
func (e *Engine) Merge(collection, id string, data Record) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}
	existing, ok := target[id]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Entry does not exist: %s", id))
	}

	record := deepCopyRecord(existing)
	for key, value := range data {
		if isSystemField(key) {
			continue
		}
		record[key] = deepCopyValue(value)
	}
	record[FieldUpdatedOn] = nowMillis()

	target[id] = record

	copied := deepCopyRecord(record)
	copied[FieldID] = id
	return copied, nil
}

// Delete removes a record and returns a deletion timestamp marker.
func (e *Engine) Delete(collection, id string) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}
	if _, ok := target[id]; !ok {
		return nil, errors.NotFound(fmt.Sprintf("Entry does not exist: %s", id))
	}
	delete(target, id)

	return Record{FieldDeletedOn: nowMillis()}, nil
}

// Query returns all records whose properties match every key in the
// predicate: case-insensitive equality for strings, loose equality otherwise.
func (e *Engine) Query(collection string, predicate Record) ([]Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	target, ok := e.collections[collection]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Collection does not exist: %s", collection))
	}

	var result []Record
	for id, record := range target {
		if matchesPredicate(record, predicate) {
			copied := deepCopyRecord(record)
			copied[FieldID] = id
			result = append(result, copied)
		}
	}
	return result, nil
}

func matchesPredicate(record, predicate Record) bool {
	for prop, want := range predicate {
		have, ok := record[prop]
		if !ok {
			return false
		}
		if !looseEqual(have, want) {
			return false
		}
	}
	return true
}

func looseEqual(a, b interface{}) bool {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.EqualFold(sa, sb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isSystemField(name string) bool {
	for _, field := range systemFields {
		if name == field {
			return true
		}
	}
	return false
}

func stripSystemFields(data Record) Record {
	record := make(Record, len(data))
	for key, value := range data {
		if isSystemField(key) {
			continue
		}
		record[key] = deepCopyValue(value)
	}
	return record
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func deepCopyRecord(record Record) Record {
	copied := make(Record, len(record))
	for key, value := range record {
		copied[key] = deepCopyValue(value)
	}
	return copied
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return deepCopyRecord(v)
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, item := range v {
			copied[i] = deepCopyValue(item)
		}
		return copied
	default:
		return value
	}
}
