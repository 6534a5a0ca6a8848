// Package tracing provides OpenTelemetry tracing for document store operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for document store spans.
const InstrumentationName = "github.com/nimburion/taskmanager/document"

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operation constants for document operations.
const (
	// SpanOperationDBQuery represents a find or find-one operation
	SpanOperationDBQuery SpanOperation = "db.query"
	// SpanOperationDBCount represents a count operation
	SpanOperationDBCount SpanOperation = "db.count"
	// SpanOperationDBInsert represents an insert operation
	SpanOperationDBInsert SpanOperation = "db.insert"
	// SpanOperationDBUpdate represents an update operation
	SpanOperationDBUpdate SpanOperation = "db.update"
	// SpanOperationDBDelete represents a delete operation
	SpanOperationDBDelete SpanOperation = "db.delete"
)

// StartDatabaseSpan creates a client span for a database operation, named
// "DB <operation> <collection>" when a collection is given.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(InstrumentationName)

	spanOpts := &databaseSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.collection != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.collection)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*databaseSpanOptions)

type databaseSpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithDBCollection sets the collection (or table) name for the span.
func WithDBCollection(collection string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.collection = collection
		opts.attributes = append(opts.attributes, attribute.String("db.collection", collection))
	}
}

// WithDBSystem sets the database system ("mongodb", "dynamodb", "memory").
func WithDBSystem(system string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithDBName sets the logical database name.
func WithDBName(name string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		if name == "" {
			return
		}
		opts.attributes = append(opts.attributes, attribute.String("db.name", name))
	}
}

// WithDBMethod records the executor method, e.g. "update_many".
func WithDBMethod(method string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.method", method))
	}
}

// WithFilterFields records the filter keys. Values are never recorded.
func WithFilterFields(fields []string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		if len(fields) == 0 {
			return
		}
		opts.attributes = append(opts.attributes, attribute.StringSlice("db.filter.fields", fields))
	}
}

// RecordAffected sets the number of documents returned or affected.
func RecordAffected(span trace.Span, n int64) {
	span.SetAttributes(attribute.Int64("db.documents", n))
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
