// Package config loads and validates taskmanager configuration with viper.
package config

import "time"

// Database type constants
const (
	// DatabaseTypeMongoDB represents MongoDB
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeDynamoDB represents AWS DynamoDB
	DatabaseTypeDynamoDB = "dynamodb"
	// DatabaseTypeMemory represents the in-process document store
	DatabaseTypeMemory = "memory"
)

// DefaultLookupID is the identifier the walkthrough looks up by default.
const DefaultLookupID = "5e1ad19c0108701064ed8c7a"

// Config is the root configuration structure.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Run           RunConfig           `mapstructure:"run"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the document store connection.
type DatabaseConfig struct {
	Type           string        `mapstructure:"type"` // mongodb, dynamodb, memory
	URL            string        `mapstructure:"url"`
	DatabaseName   string        `mapstructure:"database_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`

	// DynamoDB
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	TablePrefix     string `mapstructure:"table_prefix"`
	EnsureTables    bool   `mapstructure:"ensure_tables"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string             `mapstructure:"log_level"`
	LogFormat         string             `mapstructure:"log_format"` // json, text
	TracingEnabled    bool               `mapstructure:"tracing_enabled"`
	TracingSampleRate float64            `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string             `mapstructure:"tracing_endpoint"`
	TracingInsecure   bool               `mapstructure:"tracing_insecure"`
	AsyncLogging      AsyncLoggingConfig `mapstructure:"async_logging"`
}

// AsyncLoggingConfig configures optional asynchronous logger dispatching.
type AsyncLoggingConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	QueueSize    int  `mapstructure:"queue_size"`
	WorkerCount  int  `mapstructure:"worker_count"`
	DropWhenFull bool `mapstructure:"drop_when_full"`
}

// RunConfig configures the walkthrough.
type RunConfig struct {
	Sequential      bool          `mapstructure:"sequential"`
	LookupID        string        `mapstructure:"lookup_id"`
	UsersCollection string        `mapstructure:"users_collection"`
	TasksCollection string        `mapstructure:"tasks_collection"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the configuration used when nothing overrides it:
// a local MongoDB holding the task-manager-app database.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "taskmanager",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Type:           DatabaseTypeMongoDB,
			URL:            "mongodb://127.0.0.1:27017",
			DatabaseName:   "task-manager-app",
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   5 * time.Second,
			Region:         "us-east-1",
			EnsureTables:   true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 1.0,
			TracingInsecure:   true,
			AsyncLogging: AsyncLoggingConfig{
				QueueSize:   1024,
				WorkerCount: 1,
			},
		},
		Run: RunConfig{
			LookupID:        DefaultLookupID,
			UsersCollection: "users",
			TasksCollection: "tasks",
			Timeout:         30 * time.Second,
		},
	}
}
