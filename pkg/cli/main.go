// Package cli builds the taskmanager command tree: run, healthcheck,
// version and config.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/nimburion/taskmanager/pkg/config"
	"github.com/nimburion/taskmanager/pkg/health"
	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"github.com/nimburion/taskmanager/pkg/observability/metrics"
	"github.com/nimburion/taskmanager/pkg/observability/tracing"
	"github.com/nimburion/taskmanager/pkg/repository/document"
	"github.com/nimburion/taskmanager/pkg/store"
	"github.com/nimburion/taskmanager/pkg/taskmanager"
	"github.com/nimburion/taskmanager/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every environment variable the CLI reads.
const DefaultEnvPrefix = "TASKMANAGER"

// ErrUnhealthy is returned by the healthcheck command when any check fails.
var ErrUnhealthy = errors.New("healthcheck failed")

// CommandOptions configures the root command.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
	// LogOutput receives log entries; nil means stdout.
	LogOutput io.Writer
}

// NewCommand creates the taskmanager CLI.
func NewCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "taskmanager"
	}
	if opts.Description == "" {
		opts.Description = "Run the task manager document store walkthrough"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		Version:       version.Current(opts.Name).String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var secretFilePath string
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.StringVar(&secretFilePath, "secret-file", "", "path to secrets file (sets "+resolveEnvPrefix(opts.EnvPrefix)+"_SECRETS_FILE)")
	flags.String(config.FlagDBType, "", "database type (mongodb, dynamodb, memory)")
	flags.String(config.FlagDBURL, "", "database connection URL")
	flags.String(config.FlagDBName, "", "database name")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, secretFilePath, flags, opts.Name, opts.LogOutput)
	}
	loadSettings := func(flags *pflag.FlagSet) (*config.Config, *config.ConfigProvider, map[string]interface{}, error) {
		if err := applySecretFileFlag(opts.EnvPrefix, secretFilePath); err != nil {
			return nil, nil, nil, err
		}
		cfg := &config.Config{}
		provider := config.NewConfigProvider(cfgPath, opts.EnvPrefix).
			WithServiceNameDefault(opts.Name).
			WithFlags(flags)
		secrets, err := provider.LoadWithSecrets(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, provider, secrets, nil
	}

	// run command
	var printMetrics bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the database and run the walkthrough",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			defer logger.Flush(log)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			info := version.Current(cfg.Service.Name)
			tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
				ServiceName:    cfg.Service.Name,
				ServiceVersion: info.Version,
				Environment:    cfg.Service.Environment,
				Endpoint:       cfg.Observability.TracingEndpoint,
				Insecure:       cfg.Observability.TracingInsecure,
				SampleRate:     cfg.Observability.TracingSampleRate,
				Enabled:        cfg.Observability.TracingEnabled,
			})
			if err != nil {
				return fmt.Errorf("create tracer provider: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					log.Warn("failed to shut down tracer provider", "error", err)
				}
			}()

			log.Info("Task manager starting", append(info.Fields(), "tracing", tp.Enabled())...)
			ctx, span := tp.Tracer("github.com/nimburion/taskmanager/pkg/cli").Start(ctx, "walkthrough")
			defer span.End()

			err = RunWalkthrough(ctx, cmd.OutOrStdout(), cfg, log, printMetrics)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		},
	}
	runCmd.Flags().Bool(config.FlagSequential, false, "await each step before issuing the next")
	runCmd.Flags().BoolVar(&printMetrics, "print-metrics", false, "print document operation metrics after the run")
	rootCmd.AddCommand(runCmd)

	// healthcheck command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the database and its collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			defer logger.Flush(log)
			return CheckDependencies(commandContext(cmd), cmd.OutOrStdout(), cfg, log)
		},
	})

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), version.Current(opts.Name))
		},
	})

	// config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, _, err := loadSettings(cmd.Flags()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, provider, secrets, err := loadSettings(cmd.Flags())
			if err != nil {
				return err
			}
			settings := setServiceNameSetting(provider.AllSettings(), cfg.Service.Name)
			if !showSecrets {
				settings = redactSettingsMap(settings, secrets)
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	rootCmd.AddCommand(configCmd)
	return rootCmd
}

// printVersion writes the build metadata, showing a parsable build time in UTC.
func printVersion(out io.Writer, info version.Info) {
	buildTime := info.BuildTime
	if ts, ok := info.ParseBuildTime(); ok {
		buildTime = ts.UTC().Format(time.RFC1123)
	}
	fmt.Fprintf(out, "Service:    %s\n", info.Service)
	fmt.Fprintf(out, "Version:    %s\n", info.Version)
	fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
	fmt.Fprintf(out, "Build Time: %s\n", buildTime)
}

// RunWalkthrough connects to the configured database, runs the walkthrough
// and prints one line per step to out. A connection failure is logged and
// returned; step failures are only reported.
func RunWalkthrough(ctx context.Context, out io.Writer, cfg *config.Config, log logger.Logger, printMetrics bool) error {
	lookupID, err := document.ParseID(cfg.Run.LookupID)
	if err != nil {
		return fmt.Errorf("invalid run.lookup_id: %w", err)
	}

	handle, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			log.Error("failed to close database connection", "error", closeErr)
		}
	}()

	runCtx := ctx
	if cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
		defer cancel()
	}

	walkthrough := taskmanager.NewWalkthrough(handle.Executor, taskmanager.Options{
		UsersCollection: cfg.Run.UsersCollection,
		TasksCollection: cfg.Run.TasksCollection,
		LookupID:        lookupID,
		Sequential:      cfg.Run.Sequential,
	}, log)
	reports, err := walkthrough.Run(runCtx)
	if err != nil {
		return fmt.Errorf("walkthrough interrupted: %w", err)
	}

	for _, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(out, "%-24s error: %v\n", r.Step, r.Err)
			continue
		}
		fmt.Fprintf(out, "%-24s %s\n", r.Step, r.Summary)
	}

	if printMetrics {
		if err := metrics.NewRegistry().WriteText(out, "document_", "documents_", "walkthrough_"); err != nil {
			return fmt.Errorf("print metrics: %w", err)
		}
	}
	return nil
}

// CheckDependencies opens the database and runs the connection and
// collection checks, printing one line per check.
func CheckDependencies(ctx context.Context, out io.Writer, cfg *config.Config, log logger.Logger) error {
	handle, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			log.Error("failed to close database connection", "error", closeErr)
		}
	}()

	registry := health.NewRegistry()
	registry.Register(health.NewDatabaseChecker("database", handle))
	registry.Register(health.NewCollectionChecker("collections", handle.Executor, cfg.Run.UsersCollection, cfg.Run.TasksCollection))

	result := registry.Check(ctx)
	for _, check := range result.Checks {
		detail := check.Message
		if check.Error != "" {
			detail = check.Error
		}
		fmt.Fprintf(out, "%-12s %-9s %s\n", check.Name, check.Status, detail)
	}
	if !result.IsHealthy() {
		log.Error("Health check failed", "status", string(result.Status))
		return fmt.Errorf("%w: %s", ErrUnhealthy, result.Status)
	}
	log.Info("Health check passed", "backend", handle.Backend, "duration", result.Duration.String())
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store.Handle, error) {
	collections := []string{cfg.Run.UsersCollection, cfg.Run.TasksCollection}
	handle, err := store.Open(ctx, cfg.Database, collections, log)
	if err != nil {
		log.Error("Unable to connect to database!", "backend", cfg.Database.Type, "error", err)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database successfully!", "backend", handle.Backend, "database", handle.Database)
	return handle, nil
}

// LoadConfigAndLogger loads configuration (flags > env > secrets > file >
// defaults) and builds the logger it describes.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix,
	secretFilePath string,
	flags *pflag.FlagSet,
	defaultServiceName string,
	logOutput io.Writer,
) (*config.Config, logger.Logger, error) {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	if err := applySecretFileFlag(envPrefix, secretFilePath); err != nil {
		return nil, nil, err
	}
	cfg := &config.Config{}
	provider := config.NewConfigProvider(cfgPath, envPrefix).
		WithServiceNameDefault(defaultServiceName).
		WithFlags(flags)
	if _, err := provider.LoadWithSecrets(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, defaultServiceName)

	logCfg := logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
		Output: logOutput,
	}
	base, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	async := cfg.Observability.AsyncLogging
	log := logger.WrapAsync(base.With("service", cfg.Service.Name), logger.AsyncConfig{
		Enabled:      async.Enabled,
		QueueSize:    async.QueueSize,
		WorkerCount:  async.WorkerCount,
		DropWhenFull: async.DropWhenFull,
	})

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func formatSettings(settings map[string]interface{}) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// redactSettingsMap masks every setting that the secrets file provided.
func redactSettingsMap(settings, secrets map[string]interface{}) map[string]interface{} {
	if len(settings) == 0 || len(secrets) == 0 {
		return settings
	}
	out := make(map[string]interface{}, len(settings))
	for key, value := range settings {
		mask, ok := secrets[key]
		if !ok {
			out[key] = value
			continue
		}
		out[key] = redactSettingValue(value, mask)
	}
	return out
}

func redactSettingValue(value, mask interface{}) interface{} {
	maskMap, maskIsMap := mask.(map[string]interface{})
	if maskIsMap {
		valueMap, valueIsMap := value.(map[string]interface{})
		if !valueIsMap {
			if shouldRedactSetting(mask) {
				return "***"
			}
			return value
		}
		out := make(map[string]interface{}, len(valueMap))
		for key, item := range valueMap {
			childMask, ok := maskMap[key]
			if !ok {
				out[key] = item
				continue
			}
			out[key] = redactSettingValue(item, childMask)
		}
		return out
	}
	if shouldRedactSetting(mask) {
		return "***"
	}
	return value
}

func shouldRedactSetting(mask interface{}) bool {
	if mask == nil {
		return false
	}
	switch value := mask.(type) {
	case string:
		return strings.TrimSpace(value) != ""
	case bool:
		return value
	case int:
		return value != 0
	case int64:
		return value != 0
	case float64:
		return value != 0
	case []interface{}:
		return len(value) > 0
	case map[string]interface{}:
		return len(value) > 0
	default:
		return !reflect.ValueOf(mask).IsZero()
	}
}

// Execute runs the command and exits with code 1 on failure.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	// Connection secrets are not logged.
	redacted := *cfg
	redacted.Database.URL = "***"
	redacted.Database.SecretAccessKey = "***"
	redacted.Database.SessionToken = "***"
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", redacted))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName string) string {
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "taskmanager"
}

func setServiceNameSetting(settings map[string]interface{}, serviceName string) map[string]interface{} {
	if settings == nil {
		settings = map[string]interface{}{}
	}
	service, ok := settings["service"].(map[string]interface{})
	if !ok || service == nil {
		service = map[string]interface{}{}
	}
	service["name"] = serviceName
	settings["service"] = service
	return settings
}
