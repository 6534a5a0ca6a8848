// Package document exposes a small, backend-neutral document store API:
// identifiers, equality filters, field updates, typed collections and the
// executor contract that MongoDB, DynamoDB and in-memory backends implement.
package document

import (
	"context"
	"fmt"
	"sort"
)

// Document is the backend-neutral form of a stored record.
type Document map[string]interface{}

// ID returns the document identifier when present.
func (d Document) ID() (ID, bool) {
	raw, ok := d[IDField]
	if !ok {
		return NilID, false
	}
	return toID(raw)
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Filter represents field-based equality criteria for document stores.
// An empty filter matches every document.
type Filter map[string]interface{}

// ByID returns a filter matching the document with the given identifier.
func ByID(id ID) Filter {
	return Filter{IDField: id}
}

// Fields returns the filter keys in a stable order.
func (f Filter) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether doc satisfies every equality criterion of the filter.
func (f Filter) Matches(doc Document) bool {
	for field, want := range f {
		got, ok := doc[field]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Update describes field-level modifications applied to matching documents.
// Set replaces field values; Inc adds a numeric delta (negative to decrement).
type Update struct {
	Set map[string]interface{}
	Inc map[string]interface{}
}

// Validate checks the update against the rules every backend enforces.
func (u Update) Validate() error {
	if len(u.Set) == 0 && len(u.Inc) == 0 {
		return documentError(ErrInvalidUpdate, "update must set or increment at least one field")
	}
	if _, ok := u.Set[IDField]; ok {
		return documentError(ErrInvalidUpdate, "the _id field is immutable")
	}
	for field, delta := range u.Inc {
		if field == IDField {
			return documentError(ErrInvalidUpdate, "the _id field is immutable")
		}
		if _, ok := u.Set[field]; ok {
			return documentError(ErrInvalidUpdate, fmt.Sprintf("field %q is both set and incremented", field))
		}
		if !isNumeric(delta) {
			return documentError(ErrInvalidUpdate, fmt.Sprintf("increment for %q must be numeric, got %T", field, delta))
		}
	}
	return nil
}

// Apply returns the document that results from applying the update to doc,
// and whether any field actually changed.
func (u Update) Apply(doc Document) (Document, bool, error) {
	out := doc.Clone()
	changed := false
	for field, value := range u.Set {
		current, exists := out[field]
		if !exists || !valuesEqual(current, value) {
			changed = true
		}
		out[field] = value
	}
	for field, delta := range u.Inc {
		current, exists := out[field]
		if !exists {
			out[field] = delta
			changed = true
			continue
		}
		sum, err := addNumbers(current, delta)
		if err != nil {
			return nil, false, documentError(ErrInvalidUpdate, fmt.Sprintf("cannot increment %q: %v", field, err))
		}
		if !valuesEqual(current, sum) {
			changed = true
		}
		out[field] = sum
	}
	return out, changed, nil
}

// InsertManyResult reports the outcome of a bulk insert.
type InsertManyResult struct {
	InsertedIDs   []ID
	InsertedCount int64
}

// UpdateResult reports how many documents matched and how many changed.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// DeleteResult reports how many documents were removed.
type DeleteResult struct {
	DeletedCount int64
}

// Executor is the minimal document execution contract implemented by each backend.
// A query that matches nothing is never an error: FindOne reports found=false,
// Find returns an empty slice and counts are zero.
type Executor interface {
	InsertOne(ctx context.Context, collection string, doc Document) (ID, error)
	InsertMany(ctx context.Context, collection string, docs []Document) ([]ID, error)
	FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error)
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error)
	UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (DeleteResult, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (DeleteResult, error)
}

// ensureID assigns a fresh identifier when doc has none, mirroring driver behaviour.
func ensureID(doc Document) (Document, ID, error) {
	out := doc.Clone()
	raw, ok := out[IDField]
	if !ok || raw == nil {
		id := NewID()
		out[IDField] = id
		return out, id, nil
	}
	id, ok := toID(raw)
	if !ok || id.IsZero() {
		if ok {
			id = NewID()
			out[IDField] = id
			return out, id, nil
		}
		return nil, NilID, documentError(ErrInvalidID, fmt.Sprintf("unsupported _id value of type %T", raw))
	}
	out[IDField] = id
	return out, id, nil
}
