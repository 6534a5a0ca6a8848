package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/taskmanager/pkg/config"
	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"github.com/nimburion/taskmanager/pkg/repository/document"
	"github.com/nimburion/taskmanager/pkg/store/dynamodb"
	"github.com/nimburion/taskmanager/pkg/store/mongodb"
)

// Handle is an open document backend: the instrumented executor used for
// every operation plus the adapter that owns the connection.
type Handle struct {
	Backend  string
	Database string
	Executor document.Executor
	adapter  Adapter
}

// HealthCheck probes the underlying connection.
func (h *Handle) HealthCheck(ctx context.Context) error {
	return h.adapter.HealthCheck(ctx)
}

// Close releases the connection. It is safe to call more than once.
func (h *Handle) Close() error {
	if h == nil || h.adapter == nil {
		return nil
	}
	return h.adapter.Close()
}

// Open connects to the backend named by cfg.Type. For DynamoDB with
// EnsureTables set, a table is created for each of collections when missing.
// Connection failures are classified with document.ErrUnavailable.
func Open(ctx context.Context, cfg config.DatabaseConfig, collections []string, log logger.Logger) (*Handle, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Type))
	switch backend {
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, document.Unavailable(err)
		}
		exec, err := document.NewMongoDBExecutor(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return newHandle(backend, cfg.DatabaseName, exec, adapter, log), nil

	case config.DatabaseTypeDynamoDB:
		adapter, err := dynamodb.NewAdapter(dynamodb.Config{
			Region:           cfg.Region,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			TablePrefix:      cfg.TablePrefix,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, document.Unavailable(err)
		}
		if cfg.EnsureTables {
			for _, collection := range collections {
				if err := adapter.EnsureTable(ctx, collection); err != nil {
					_ = adapter.Close()
					if dynamodb.IsConnectionError(err) {
						return nil, document.Unavailable(err)
					}
					return nil, err
				}
			}
		}
		exec, err := document.NewDynamoDBExecutor(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return newHandle(backend, cfg.DatabaseName, exec, adapter, log), nil

	case config.DatabaseTypeMemory:
		exec := document.NewMemoryExecutor()
		log.Info("In-memory document store initialized")
		return newHandle(backend, "", exec, exec, log), nil

	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: mongodb, dynamodb, memory)", cfg.Type)
	}
}

func newHandle(backend, database string, exec document.Executor, adapter Adapter, log logger.Logger) *Handle {
	return &Handle{
		Backend:  backend,
		Database: database,
		Executor: document.NewInstrumentedExecutor(exec, backend, database, log),
		adapter:  adapter,
	}
}
