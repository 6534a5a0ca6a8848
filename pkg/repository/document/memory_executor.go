package document

import (
	"context"
	"fmt"
	"sync"
)

// MemoryExecutor is an in-process document backend.
// Documents keep their insertion order so FindOne and DeleteOne are deterministic.
type MemoryExecutor struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	closed      bool
}

type memoryCollection struct {
	order []ID
	docs  map[ID]Document
}

// NewMemoryExecutor creates an empty in-memory executor.
func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{collections: make(map[string]*memoryCollection)}
}

// InsertOne stores doc, assigning an identifier when it has none.
func (e *MemoryExecutor) InsertOne(ctx context.Context, collection string, doc Document) (ID, error) {
	ids, err := e.InsertMany(ctx, collection, []Document{doc})
	if err != nil {
		return NilID, err
	}
	return ids[0], nil
}

// InsertMany stores docs atomically: either all are inserted or none.
func (e *MemoryExecutor) InsertMany(ctx context.Context, collection string, docs []Document) ([]ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prepared := make([]Document, 0, len(docs))
	ids := make([]ID, 0, len(docs))
	seen := make(map[ID]struct{}, len(docs))
	for _, doc := range docs {
		stored, id, err := ensureID(doc)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, documentError(ErrDuplicateID, id.Hex())
		}
		seen[id] = struct{}{}
		prepared = append(prepared, stored)
		ids = append(ids, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	coll := e.collection(collection)
	for _, id := range ids {
		if _, exists := coll.docs[id]; exists {
			return nil, documentError(ErrDuplicateID, id.Hex())
		}
	}
	for i, id := range ids {
		coll.docs[id] = prepared[i]
		coll.order = append(coll.order, id)
	}
	return ids, nil
}

// FindOne returns the first document matching filter in insertion order.
func (e *MemoryExecutor) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	matches, err := e.match(ctx, collection, filter, 1)
	if err != nil || len(matches) == 0 {
		return nil, false, err
	}
	return matches[0], true, nil
}

// Find returns every document matching filter.
func (e *MemoryExecutor) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	return e.match(ctx, collection, filter, 0)
}

// Count returns the number of documents matching filter.
func (e *MemoryExecutor) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	matches, err := e.match(ctx, collection, filter, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

// UpdateOne applies update to the first matching document.
func (e *MemoryExecutor) UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	return e.update(ctx, collection, filter, update, 1)
}

// UpdateMany applies update to every matching document.
func (e *MemoryExecutor) UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	return e.update(ctx, collection, filter, update, 0)
}

// DeleteOne removes the first matching document.
func (e *MemoryExecutor) DeleteOne(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	return e.delete(ctx, collection, filter, 1)
}

// DeleteMany removes every matching document.
func (e *MemoryExecutor) DeleteMany(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	return e.delete(ctx, collection, filter, 0)
}

// HealthCheck reports ErrClosed once the executor is closed.
func (e *MemoryExecutor) HealthCheck(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Close discards every collection. Further operations fail with ErrClosed.
func (e *MemoryExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.collections = make(map[string]*memoryCollection)
	return nil
}

func (e *MemoryExecutor) collection(name string) *memoryCollection {
	coll, ok := e.collections[name]
	if !ok {
		coll = &memoryCollection{docs: make(map[ID]Document)}
		e.collections[name] = coll
	}
	return coll
}

// match returns clones of matching documents; limit 0 means unbounded.
func (e *MemoryExecutor) match(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	out := []Document{}
	coll, ok := e.collections[collection]
	if !ok {
		return out, nil
	}
	for _, id := range coll.order {
		doc := coll.docs[id]
		if !filter.Matches(doc) {
			continue
		}
		out = append(out, doc.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (e *MemoryExecutor) update(ctx context.Context, collection string, filter Filter, update Update, limit int) (UpdateResult, error) {
	if err := update.Validate(); err != nil {
		return UpdateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return UpdateResult{}, ErrClosed
	}
	var result UpdateResult
	coll, ok := e.collections[collection]
	if !ok {
		return result, nil
	}
	for _, id := range coll.order {
		doc := coll.docs[id]
		if !filter.Matches(doc) {
			continue
		}
		updated, changed, err := update.Apply(doc)
		if err != nil {
			return result, fmt.Errorf("update %s/%s: %w", collection, id.Hex(), err)
		}
		result.MatchedCount++
		if changed {
			coll.docs[id] = updated
			result.ModifiedCount++
		}
		if limit > 0 && int(result.MatchedCount) == limit {
			break
		}
	}
	return result, nil
}

func (e *MemoryExecutor) delete(ctx context.Context, collection string, filter Filter, limit int) (DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return DeleteResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return DeleteResult{}, ErrClosed
	}
	var result DeleteResult
	coll, ok := e.collections[collection]
	if !ok {
		return result, nil
	}
	kept := coll.order[:0]
	for _, id := range coll.order {
		if (limit == 0 || int(result.DeletedCount) < limit) && filter.Matches(coll.docs[id]) {
			delete(coll.docs, id)
			result.DeletedCount++
			continue
		}
		kept = append(kept, id)
	}
	coll.order = kept
	return result, nil
}
