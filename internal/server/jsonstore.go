package server

import (
	"sync"

	"github.com/google/uuid"
)

// JSONStore is a schemaless nested key-value tree addressed by path tokens.
// It carries no access rules and no system property handling; records gain
// only an _id on insert. Useful for fixture endpoints that predate the
// rule-guarded collections.
type JSONStore struct {
	mu   sync.RWMutex
	root map[string]interface{}
}

// NewJSONStore seeds the tree. A nil seed starts empty.
func NewJSONStore(seed map[string]interface{}) *JSONStore {
	if seed == nil {
		seed = make(map[string]interface{})
	}
	return &JSONStore{root: copyTree(seed).(map[string]interface{})}
}

// Service exposes the tree under /jsonstore/<path...>.
func (j *JSONStore) Service() *Service {
	s := NewService("jsonstore")
	s.Get(":collection", j.get)
	s.Post(":collection", j.post)
	s.Put(":collection", j.put)
	s.Patch(":collection", j.patch)
	s.Delete(":collection", j.delete)
	return s
}

func (j *JSONStore) get(ctx *Context, req *Request) (interface{}, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	node, ok := j.walk(pathOf(ctx, req))
	if !ok {
		return nil, nil
	}
	return copyTree(node), nil
}

func (j *JSONStore) post(ctx *Context, req *Request) (interface{}, error) {
	body, ok := req.BodyRecord()
	if !ok {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	node := j.root
	for _, token := range pathOf(ctx, req) {
		child, ok := node[token].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[token] = child
		}
		node = child
	}

	id := uuid.NewString()
	entry := make(map[string]interface{}, len(body)+1)
	for key, value := range body {
		entry[key] = copyTree(value)
	}
	entry["_id"] = id
	node[id] = entry
	return copyTree(entry), nil
}

func (j *JSONStore) put(ctx *Context, req *Request) (interface{}, error) {
	path := pathOf(ctx, req)
	if len(path) == 0 {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	parent, ok := j.walk(path[:len(path)-1])
	if !ok {
		return nil, nil
	}
	target, ok := parent.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	leaf := path[len(path)-1]
	if _, ok := target[leaf]; !ok {
		return nil, nil
	}
	target[leaf] = copyTree(req.Body)
	return copyTree(target[leaf]), nil
}

func (j *JSONStore) patch(ctx *Context, req *Request) (interface{}, error) {
	body, ok := req.BodyRecord()
	if !ok {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	node, found := j.walk(pathOf(ctx, req))
	if !found {
		return nil, nil
	}
	target, ok := node.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	for key, value := range body {
		target[key] = copyTree(value)
	}
	return copyTree(target), nil
}

func (j *JSONStore) delete(ctx *Context, req *Request) (interface{}, error) {
	path := pathOf(ctx, req)
	if len(path) == 0 {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	parent, ok := j.walk(path[:len(path)-1])
	if !ok {
		return nil, nil
	}
	target, ok := parent.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	leaf := path[len(path)-1]
	removed, ok := target[leaf]
	if !ok {
		return nil, nil
	}
	delete(target, leaf)
	return copyTree(removed), nil
}

// walk descends the tree along path. The empty path yields the root.
func (j *JSONStore) walk(path []string) (interface{}, bool) {
	var node interface{} = j.root
	for _, token := range path {
		branch, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = branch[token]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func pathOf(ctx *Context, req *Request) []string {
	var path []string
	if ctx.Params["collection"] != "" {
		path = append(path, ctx.Params["collection"])
	}
	return append(path, req.Tokens...)
}

func copyTree(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(value))
		for key, entry := range value {
			copied[key] = copyTree(entry)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(value))
		for i, entry := range value {
			copied[i] = copyTree(entry)
		}
		return copied
	default:
		return value
	}
}
