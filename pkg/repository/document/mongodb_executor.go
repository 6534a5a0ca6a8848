package document

import (
	"context"
	"errors"
	"fmt"

	mongostore "github.com/nimburion/taskmanager/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDBExecutor adapts the store/mongodb adapter to the Executor contract.
type MongoDBExecutor struct {
	adapter *mongostore.Adapter
}

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor(adapter *mongostore.Adapter) (*MongoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoDBExecutor{adapter: adapter}, nil
}

// InsertOne inserts a document into the collection.
func (e *MongoDBExecutor) InsertOne(ctx context.Context, collection string, doc Document) (ID, error) {
	stored, id, err := ensureID(doc)
	if err != nil {
		return NilID, err
	}
	if _, err := e.adapter.InsertOne(ctx, collection, bson.M(stored)); err != nil {
		return NilID, classifyMongoError(err)
	}
	return id, nil
}

// InsertMany inserts every document in a single ordered batch.
func (e *MongoDBExecutor) InsertMany(ctx context.Context, collection string, docs []Document) ([]ID, error) {
	if len(docs) == 0 {
		return []ID{}, nil
	}
	batch := make([]interface{}, 0, len(docs))
	ids := make([]ID, 0, len(docs))
	for _, doc := range docs {
		stored, id, err := ensureID(doc)
		if err != nil {
			return nil, err
		}
		batch = append(batch, bson.M(stored))
		ids = append(ids, id)
	}
	if _, err := e.adapter.InsertMany(ctx, collection, batch); err != nil {
		return nil, classifyMongoError(err)
	}
	return ids, nil
}

// FindOne finds a single document matching the filter.
func (e *MongoDBExecutor) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	out := bson.M{}
	if err := e.adapter.FindOne(ctx, collection, mongoFilter(filter), &out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, classifyMongoError(err)
	}
	return fromMongo(out), true, nil
}

// Find returns every document matching the filter.
func (e *MongoDBExecutor) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	var rows []bson.M
	if err := e.adapter.FindAll(ctx, collection, mongoFilter(filter), &rows); err != nil {
		return nil, classifyMongoError(err)
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromMongo(row))
	}
	return out, nil
}

// Count returns the number of documents matching the filter.
func (e *MongoDBExecutor) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	n, err := e.adapter.CountDocuments(ctx, collection, mongoFilter(filter))
	if err != nil {
		return 0, classifyMongoError(err)
	}
	return n, nil
}

// UpdateOne updates a single document matching the filter.
func (e *MongoDBExecutor) UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	if err := update.Validate(); err != nil {
		return UpdateResult{}, err
	}
	result, err := e.adapter.UpdateOne(ctx, collection, mongoFilter(filter), mongoUpdate(update))
	if err != nil {
		return UpdateResult{}, classifyMongoError(err)
	}
	return UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// UpdateMany updates every document matching the filter.
func (e *MongoDBExecutor) UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	if err := update.Validate(); err != nil {
		return UpdateResult{}, err
	}
	result, err := e.adapter.UpdateMany(ctx, collection, mongoFilter(filter), mongoUpdate(update))
	if err != nil {
		return UpdateResult{}, classifyMongoError(err)
	}
	return UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteOne deletes a single document matching the filter.
func (e *MongoDBExecutor) DeleteOne(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	result, err := e.adapter.DeleteOne(ctx, collection, mongoFilter(filter))
	if err != nil {
		return DeleteResult{}, classifyMongoError(err)
	}
	return DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// DeleteMany deletes every document matching the filter.
func (e *MongoDBExecutor) DeleteMany(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	result, err := e.adapter.DeleteMany(ctx, collection, mongoFilter(filter))
	if err != nil {
		return DeleteResult{}, classifyMongoError(err)
	}
	return DeleteResult{DeletedCount: result.DeletedCount}, nil
}

func mongoFilter(filter Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

func mongoUpdate(update Update) bson.M {
	out := bson.M{}
	if len(update.Set) > 0 {
		out["$set"] = bson.M(update.Set)
	}
	if len(update.Inc) > 0 {
		out["$inc"] = bson.M(update.Inc)
	}
	return out
}

func fromMongo(m bson.M) Document {
	doc := Document(m)
	if id, ok := doc.ID(); ok {
		doc[IDField] = id
	}
	return doc
}

func classifyMongoError(err error) error {
	if mongostore.IsConnectionError(err) {
		return Unavailable(err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)
	}
	return err
}
