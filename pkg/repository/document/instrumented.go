package document

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"github.com/nimburion/taskmanager/pkg/observability/metrics"
	"github.com/nimburion/taskmanager/pkg/observability/tracing"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedExecutor decorates an Executor with spans, metrics and debug logs.
type InstrumentedExecutor struct {
	next    Executor
	backend string
	dbName  string
	log     logger.Logger
}

// NewInstrumentedExecutor wraps next. backend labels metrics and spans
// ("mongodb", "dynamodb", "memory"); dbName is optional.
func NewInstrumentedExecutor(next Executor, backend, dbName string, log logger.Logger) *InstrumentedExecutor {
	return &InstrumentedExecutor{next: next, backend: backend, dbName: dbName, log: log}
}

// Unwrap returns the decorated executor.
func (e *InstrumentedExecutor) Unwrap() Executor {
	return e.next
}

type call struct {
	exec       *InstrumentedExecutor
	ctx        context.Context
	span       trace.Span
	collection string
	method     string
	started    time.Time
}

func (e *InstrumentedExecutor) start(ctx context.Context, op tracing.SpanOperation, collection, method string, filter Filter) *call {
	ctx, span := tracing.StartDatabaseSpan(ctx, op,
		tracing.WithDBSystem(e.backend),
		tracing.WithDBName(e.dbName),
		tracing.WithDBCollection(collection),
		tracing.WithDBMethod(method),
		tracing.WithFilterFields(filter.Fields()),
	)
	return &call{exec: e, ctx: ctx, span: span, collection: collection, method: method, started: time.Now()}
}

// finish ends the span and records metrics. affected is the number of
// documents returned or written; notFound marks a successful empty lookup.
func (c *call) finish(err error, affected int64, notFound bool) {
	defer c.span.End()
	elapsed := time.Since(c.started)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && (IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded)):
		outcome = metrics.OutcomeUnavailable
	case err != nil:
		outcome = metrics.OutcomeError
	case notFound:
		outcome = metrics.OutcomeNotFound
	}
	metrics.RecordDocumentOperation(c.exec.backend, c.collection, c.method, outcome, elapsed)

	if err != nil {
		tracing.RecordError(c.span, err)
		if c.exec.log != nil {
			c.exec.log.WithContext(c.ctx).Debug("document operation failed",
				"backend", c.exec.backend,
				"collection", c.collection,
				"operation", c.method,
				"duration_ms", elapsed.Milliseconds(),
				"error", err,
			)
		}
		return
	}

	tracing.RecordAffected(c.span, affected)
	tracing.RecordSuccess(c.span)
	switch c.method {
	case "insert_one", "insert_many", "update_one", "update_many", "delete_one", "delete_many":
		metrics.RecordDocumentsAffected(c.exec.backend, c.collection, c.method, affected)
	}
	if c.exec.log != nil {
		c.exec.log.WithContext(c.ctx).Debug("document operation completed",
			"backend", c.exec.backend,
			"collection", c.collection,
			"operation", c.method,
			"documents", affected,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

// InsertOne implements Executor.
func (e *InstrumentedExecutor) InsertOne(ctx context.Context, collection string, doc Document) (ID, error) {
	c := e.start(ctx, tracing.SpanOperationDBInsert, collection, "insert_one", nil)
	id, err := e.next.InsertOne(c.ctx, collection, doc)
	c.finish(err, 1, false)
	return id, err
}

// InsertMany implements Executor.
func (e *InstrumentedExecutor) InsertMany(ctx context.Context, collection string, docs []Document) ([]ID, error) {
	c := e.start(ctx, tracing.SpanOperationDBInsert, collection, "insert_many", nil)
	ids, err := e.next.InsertMany(c.ctx, collection, docs)
	c.finish(err, int64(len(ids)), false)
	return ids, err
}

// FindOne implements Executor.
func (e *InstrumentedExecutor) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	c := e.start(ctx, tracing.SpanOperationDBQuery, collection, "find_one", filter)
	doc, found, err := e.next.FindOne(c.ctx, collection, filter)
	var n int64
	if found {
		n = 1
	}
	c.finish(err, n, !found)
	return doc, found, err
}

// Find implements Executor.
func (e *InstrumentedExecutor) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	c := e.start(ctx, tracing.SpanOperationDBQuery, collection, "find", filter)
	docs, err := e.next.Find(c.ctx, collection, filter)
	c.finish(err, int64(len(docs)), false)
	return docs, err
}

// Count implements Executor.
func (e *InstrumentedExecutor) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	c := e.start(ctx, tracing.SpanOperationDBCount, collection, "count", filter)
	n, err := e.next.Count(c.ctx, collection, filter)
	c.finish(err, n, false)
	return n, err
}

// UpdateOne implements Executor.
func (e *InstrumentedExecutor) UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	c := e.start(ctx, tracing.SpanOperationDBUpdate, collection, "update_one", filter)
	res, err := e.next.UpdateOne(c.ctx, collection, filter, update)
	c.finish(err, res.ModifiedCount, err == nil && res.MatchedCount == 0)
	return res, err
}

// UpdateMany implements Executor.
func (e *InstrumentedExecutor) UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	c := e.start(ctx, tracing.SpanOperationDBUpdate, collection, "update_many", filter)
	res, err := e.next.UpdateMany(c.ctx, collection, filter, update)
	c.finish(err, res.ModifiedCount, err == nil && res.MatchedCount == 0)
	return res, err
}

// DeleteOne implements Executor.
func (e *InstrumentedExecutor) DeleteOne(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	c := e.start(ctx, tracing.SpanOperationDBDelete, collection, "delete_one", filter)
	res, err := e.next.DeleteOne(c.ctx, collection, filter)
	c.finish(err, res.DeletedCount, err == nil && res.DeletedCount == 0)
	return res, err
}

// DeleteMany implements Executor.
func (e *InstrumentedExecutor) DeleteMany(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	c := e.start(ctx, tracing.SpanOperationDBDelete, collection, "delete_many", filter)
	res, err := e.next.DeleteMany(c.ctx, collection, filter)
	c.finish(err, res.DeletedCount, err == nil && res.DeletedCount == 0)
	return res, err
}
