package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("mongodb adapter is closed")

// Adapter provides MongoDB connectivity for a single logical database.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// NewAdapter connects to MongoDB and verifies connectivity with a ping.
// It does not create collections or indexes: collections appear on first insert.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URL).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

// DatabaseName returns the logical database every collection belongs to.
func (a *Adapter) DatabaseName() string {
	return a.database
}

func (a *Adapter) collection(name string) *mongo.Collection {
	return a.client.Database(a.database).Collection(name)
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// InsertOne inserts a document into the collection.
// It does not validate the document shape.
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).InsertOne(opCtx, doc)
}

func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []interface{}) (*mongo.InsertManyResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).InsertMany(opCtx, docs)
}

// FindOne decodes the first match into result and returns mongo.ErrNoDocuments when nothing matches.
func (a *Adapter) FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return a.collection(collection).FindOne(opCtx, filter).Decode(result)
}

// FindAll drains the cursor for filter into results, which must be a pointer to a slice.
func (a *Adapter) FindAll(ctx context.Context, collection string, filter interface{}, results interface{}) error {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	cursor, err := a.collection(collection).Find(opCtx, filter)
	if err != nil {
		return err
	}
	defer cursor.Close(opCtx)
	return cursor.All(opCtx, results)
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return a.collection(collection).CountDocuments(opCtx, filter)
}

func (a *Adapter) UpdateOne(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).UpdateOne(opCtx, filter, update)
}

func (a *Adapter) UpdateMany(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).UpdateMany(opCtx, filter, update)
}

func (a *Adapter) DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).DeleteOne(opCtx, filter)
}

func (a *Adapter) DeleteMany(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return a.collection(collection).DeleteMany(opCtx, filter)
}

// DropCollection removes a collection and all of its documents.
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	opCtx, cancel, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return a.collection(name).Drop(opCtx)
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// begin rejects calls on a closed adapter and applies the operation timeout.
func (a *Adapter) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if a.isClosed() {
		return nil, nil, ErrClosed
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	return opCtx, cancel, nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// IsConnectionError reports whether err means the server could not be reached,
// as opposed to a server-side rejection of a single operation.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, ErrClosed)
}
