package document

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection is a typed view over a named collection of an Executor.
// T must round-trip through BSON; the identifier field should be declared as
//
//	ID document.ID `bson:"_id,omitempty"`
type Collection[T any] struct {
	name string
	exec Executor
}

// NewCollection binds a typed collection to an executor.
func NewCollection[T any](exec Executor, name string) *Collection[T] {
	return &Collection[T]{name: name, exec: exec}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// InsertOne stores rec and returns the stored record, identifier included.
func (c *Collection[T]) InsertOne(ctx context.Context, rec *T) (*T, error) {
	if rec == nil {
		return nil, fmt.Errorf("insert into %s: record is nil", c.name)
	}
	doc, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	doc, _, err = ensureID(doc)
	if err != nil {
		return nil, err
	}
	if _, err := c.exec.InsertOne(ctx, c.name, doc); err != nil {
		return nil, err
	}
	var out T
	if err := Decode(doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InsertMany stores every record and reports how many were inserted.
func (c *Collection[T]) InsertMany(ctx context.Context, recs []T) (InsertManyResult, error) {
	docs := make([]Document, 0, len(recs))
	for i := range recs {
		doc, err := Encode(&recs[i])
		if err != nil {
			return InsertManyResult{}, err
		}
		docs = append(docs, doc)
	}
	ids, err := c.exec.InsertMany(ctx, c.name, docs)
	if err != nil {
		return InsertManyResult{}, err
	}
	return InsertManyResult{InsertedIDs: ids, InsertedCount: int64(len(ids))}, nil
}

// FindOne returns the first record matching filter, or nil when none does.
func (c *Collection[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	doc, found, err := c.exec.FindOne(ctx, c.name, filter)
	if err != nil || !found {
		return nil, err
	}
	var out T
	if err := Decode(doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the record with the given identifier, or nil.
func (c *Collection[T]) FindByID(ctx context.Context, id ID) (*T, error) {
	return c.FindOne(ctx, ByID(id))
}

// Find returns a lazy cursor over the records matching filter.
// Nothing is sent to the store until the cursor is materialized.
func (c *Collection[T]) Find(filter Filter) *Cursor[T] {
	return &Cursor[T]{coll: c, filter: filter}
}

// UpdateOne applies update to the first record matching filter.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error) {
	return c.exec.UpdateOne(ctx, c.name, filter, update)
}

// UpdateMany applies update to every record matching filter.
func (c *Collection[T]) UpdateMany(ctx context.Context, filter Filter, update Update) (UpdateResult, error) {
	return c.exec.UpdateMany(ctx, c.name, filter, update)
}

// DeleteOne removes the first record matching filter.
func (c *Collection[T]) DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	return c.exec.DeleteOne(ctx, c.name, filter)
}

// DeleteMany removes every record matching filter.
func (c *Collection[T]) DeleteMany(ctx context.Context, filter Filter) (DeleteResult, error) {
	return c.exec.DeleteMany(ctx, c.name, filter)
}

// Cursor is a lazy handle on the records matching a filter.
// A cursor may be materialized any number of times; each call queries the store.
type Cursor[T any] struct {
	coll   *Collection[T]
	filter Filter
}

// All returns every matching record. The slice is empty, never nil, when nothing matches.
func (cur *Cursor[T]) All(ctx context.Context) ([]T, error) {
	docs, err := cur.coll.exec.Find(ctx, cur.coll.name, cur.filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := Decode(doc, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of matching records.
func (cur *Cursor[T]) Count(ctx context.Context) (int64, error) {
	return cur.coll.exec.Count(ctx, cur.coll.name, cur.filter)
}

// Encode converts a BSON-tagged value into a Document.
func Encode(v interface{}) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	m := bson.M{}
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	doc := Document(m)
	if id, ok := doc.ID(); ok {
		doc[IDField] = id
	}
	return doc, nil
}

// Decode converts a Document into the BSON-tagged value pointed to by out.
func Decode(doc Document, out interface{}) error {
	raw, err := bson.Marshal(bson.M(doc))
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
