package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nimburion/taskmanager/pkg/repository/document"
	"github.com/spf13/viper"
)

// ViperLoader layers defaults, the config file, an optional secrets file and
// environment variables onto a viper instance. ConfigProvider drives it.
type ViperLoader struct {
	configFile         string
	envPrefix          string
	serviceNameDefault string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "TASKMANAGER")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithServiceNameDefault sets the default service.name used when no config/env override is provided.
func (l *ViperLoader) WithServiceNameDefault(serviceName string) *ViperLoader {
	if l == nil {
		return l
	}
	l.serviceNameDefault = strings.TrimSpace(serviceName)
	return l
}

// read fills v with precedence: ENV > secrets file > config file > defaults.
// The secrets file is only consulted when withSecrets is set; its raw
// settings are returned so callers can redact them.
func (l *ViperLoader) read(v *viper.Viper, withSecrets bool) (map[string]interface{}, error) {
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets map[string]interface{}
	if withSecrets {
		var err error
		if secrets, err = l.mergeSecrets(v); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindLegacyEnvVars()
	l.bindEnvVars(v)
	return secrets, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_NAME"), l.prefixedEnv("DB_DATABASE_NAME"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	v.BindEnv("database.region", l.prefixedEnv("DB_REGION"))
	v.BindEnv("database.endpoint", l.prefixedEnv("DB_ENDPOINT"))
	v.BindEnv("database.access_key_id", l.prefixedEnv("DB_ACCESS_KEY_ID"))
	v.BindEnv("database.secret_access_key", l.prefixedEnv("DB_SECRET_ACCESS_KEY"))
	v.BindEnv("database.session_token", l.prefixedEnv("DB_SESSION_TOKEN"))
	v.BindEnv("database.table_prefix", l.prefixedEnv("DB_TABLE_PREFIX"))
	v.BindEnv("database.ensure_tables", l.prefixedEnv("DB_ENSURE_TABLES"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("observability.async_logging.enabled", l.prefixedEnv("LOG_ASYNC_ENABLED"))
	v.BindEnv("observability.async_logging.queue_size", l.prefixedEnv("LOG_ASYNC_QUEUE_SIZE"))
	v.BindEnv("observability.async_logging.worker_count", l.prefixedEnv("LOG_ASYNC_WORKER_COUNT"))
	v.BindEnv("observability.async_logging.drop_when_full", l.prefixedEnv("LOG_ASYNC_DROP_WHEN_FULL"))

	// Run
	v.BindEnv("run.sequential", l.prefixedEnv("RUN_SEQUENTIAL"))
	v.BindEnv("run.lookup_id", l.prefixedEnv("RUN_LOOKUP_ID"))
	v.BindEnv("run.users_collection", l.prefixedEnv("RUN_USERS_COLLECTION"))
	v.BindEnv("run.tasks_collection", l.prefixedEnv("RUN_TASKS_COLLECTION"))
	v.BindEnv("run.timeout", l.prefixedEnv("RUN_TIMEOUT"))
}

// bindLegacyEnvVars maps long-form env vars to the abbreviated names when the abbreviated vars are absent.
func (l *ViperLoader) bindLegacyEnvVars() {
	aliases := []struct {
		abbrevSuffix string
		legacySuffix string
	}{
		{"DB_TYPE", "DATABASE_TYPE"},
		{"DB_URL", "DATABASE_URL"},
		{"DB_URL", "MONGODB_URL"},
		{"DB_NAME", "DATABASE_NAME"},
		{"DB_CONNECT_TIMEOUT", "DATABASE_CONNECT_TIMEOUT"},
		{"DB_QUERY_TIMEOUT", "DATABASE_QUERY_TIMEOUT"},
		{"DB_REGION", "DATABASE_REGION"},
		{"DB_ENDPOINT", "DATABASE_ENDPOINT"},
		{"DB_ACCESS_KEY_ID", "DATABASE_ACCESS_KEY_ID"},
		{"DB_SECRET_ACCESS_KEY", "DATABASE_SECRET_ACCESS_KEY"},
		{"DB_SESSION_TOKEN", "DATABASE_SESSION_TOKEN"},
	}

	for _, alias := range aliases {
		abbrevEnv := l.prefixedEnv(alias.abbrevSuffix)
		if _, hasAbbrev := os.LookupEnv(abbrevEnv); hasAbbrev {
			continue
		}
		if legacyValue, hasLegacy := os.LookupEnv(l.prefixedEnv(alias.legacySuffix)); hasLegacy {
			_ = os.Setenv(abbrevEnv, legacyValue)
		}
	}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "TASKMANAGER"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

func (l *ViperLoader) defaultServiceName(fallback string) string {
	if l != nil {
		if configured := strings.TrimSpace(l.serviceNameDefault); configured != "" {
			return configured
		}
	}
	return strings.TrimSpace(fallback)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", l.defaultServiceName(cfg.Service.Name))
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.region", cfg.Database.Region)
	v.SetDefault("database.endpoint", cfg.Database.Endpoint)
	v.SetDefault("database.access_key_id", cfg.Database.AccessKeyID)
	v.SetDefault("database.secret_access_key", cfg.Database.SecretAccessKey)
	v.SetDefault("database.session_token", cfg.Database.SessionToken)
	v.SetDefault("database.table_prefix", cfg.Database.TablePrefix)
	v.SetDefault("database.ensure_tables", cfg.Database.EnsureTables)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
	v.SetDefault("observability.async_logging.enabled", cfg.Observability.AsyncLogging.Enabled)
	v.SetDefault("observability.async_logging.queue_size", cfg.Observability.AsyncLogging.QueueSize)
	v.SetDefault("observability.async_logging.worker_count", cfg.Observability.AsyncLogging.WorkerCount)
	v.SetDefault("observability.async_logging.drop_when_full", cfg.Observability.AsyncLogging.DropWhenFull)

	v.SetDefault("run.sequential", cfg.Run.Sequential)
	v.SetDefault("run.lookup_id", cfg.Run.LookupID)
	v.SetDefault("run.users_collection", cfg.Run.UsersCollection)
	v.SetDefault("run.tasks_collection", cfg.Run.TasksCollection)
	v.SetDefault("run.timeout", cfg.Run.Timeout)
}

// normalize lower-cases enumerated settings, then validates cfg.
func normalize(cfg *Config) error {
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	cfg.Observability.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))
	cfg.Run.LookupID = strings.ToLower(strings.TrimSpace(cfg.Run.LookupID))
	return cfg.Validate()
}

// Validate checks the configuration and returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	validDatabaseTypes := []string{DatabaseTypeMongoDB, DatabaseTypeDynamoDB, DatabaseTypeMemory}
	switch c.Database.Type {
	case DatabaseTypeMongoDB:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for MongoDB"))
		}
		if c.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for MongoDB"))
		}
	case DatabaseTypeDynamoDB:
		if c.Database.Region == "" {
			errs = append(errs, errors.New("database.region is required for DynamoDB"))
		}
		if (c.Database.AccessKeyID == "") != (c.Database.SecretAccessKey == "") {
			errs = append(errs, errors.New("database.access_key_id and database.secret_access_key must be set together"))
		}
	case DatabaseTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: %v)", c.Database.Type, validDatabaseTypes))
	}
	if c.Database.ConnectTimeout < 0 {
		errs = append(errs, errors.New("database.connect_timeout must be >= 0"))
	}
	if c.Database.QueryTimeout < 0 {
		errs = append(errs, errors.New("database.query_timeout must be >= 0"))
	}

	validLogLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLogLevels, c.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", c.Observability.LogLevel, validLogLevels))
	}
	validLogFormats := []string{"json", "text", "console"}
	if !contains(validLogFormats, c.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", c.Observability.LogFormat, validLogFormats))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
	}
	if c.Observability.TracingEnabled && strings.TrimSpace(c.Observability.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if c.Observability.AsyncLogging.Enabled {
		if c.Observability.AsyncLogging.QueueSize <= 0 {
			errs = append(errs, errors.New("observability.async_logging.queue_size must be > 0"))
		}
		if c.Observability.AsyncLogging.WorkerCount <= 0 {
			errs = append(errs, errors.New("observability.async_logging.worker_count must be > 0"))
		}
	}

	if _, err := document.ParseID(c.Run.LookupID); err != nil {
		errs = append(errs, fmt.Errorf("invalid run.lookup_id: %w", err))
	}
	if strings.TrimSpace(c.Run.UsersCollection) == "" {
		errs = append(errs, errors.New("run.users_collection is required"))
	}
	if strings.TrimSpace(c.Run.TasksCollection) == "" {
		errs = append(errs, errors.New("run.tasks_collection is required"))
	}
	if c.Run.UsersCollection != "" && c.Run.UsersCollection == c.Run.TasksCollection {
		errs = append(errs, errors.New("run.users_collection and run.tasks_collection must differ"))
	}
	if c.Run.Timeout < 0 {
		errs = append(errs, errors.New("run.timeout must be >= 0"))
	}

	return errors.Join(errs...)
}

// contains checks if a string slice contains a specific item
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
