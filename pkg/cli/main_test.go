package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nimburion/taskmanager/pkg/config"
	"github.com/nimburion/taskmanager/pkg/observability/logger"
	"github.com/nimburion/taskmanager/pkg/repository/document"
	"github.com/nimburion/taskmanager/pkg/version"
	"github.com/spf13/cobra"
)

func nopLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(logger.Config{Level: logger.ErrorLevel, Format: logger.JSONFormat, Output: io.Discard})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	return log
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := NewCommand(CommandOptions{LogOutput: &logs})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), logs.String(), err
}

func TestNewCommand_Subcommands(t *testing.T) {
	cmd := NewCommand(CommandOptions{})
	for _, path := range [][]string{{"run"}, {"healthcheck"}, {"version"}, {"config", "validate"}, {"config", "show"}} {
		found, _, err := cmd.Find(path)
		if err != nil {
			t.Fatalf("expected %v command, got error: %v", path, err)
		}
		if found.Name() != path[len(path)-1] {
			t.Fatalf("expected %v command, got %q", path, found.Name())
		}
	}

	for _, name := range []string{"config-file", "secret-file", config.FlagDBType, config.FlagDBURL, config.FlagDBName} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected persistent flag --%s", name)
		}
	}
	runCmd, _, _ := cmd.Find([]string{"run"})
	if runCmd.Flags().Lookup(config.FlagSequential) == nil || runCmd.Flags().Lookup("print-metrics") == nil {
		t.Fatal("expected run flags --sequential and --print-metrics")
	}
}

func TestRunCommand_MemoryBackend(t *testing.T) {
	out, logs, err := executeCommand(t, "run", "--db-type", "memory", "--sequential", "--print-metrics")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, want := range []string{
		"insert_user",
		"inserted 3 tasks",
		"found 2 open tasks",
		"counted 2 open tasks",
		"modified 2 tasks",
		"walkthrough_steps_total",
		"document_operations_total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(logs, "Connected to database successfully!") {
		t.Errorf("expected connection log, got:\n%s", logs)
	}
	if !strings.Contains(logs, "User not found") {
		t.Errorf("expected lookup miss to be logged, got:\n%s", logs)
	}
	for _, want := range []string{"Task manager starting", `"version":"dev"`, `"build_time":"unknown"`, `"tracing":false`} {
		if !strings.Contains(logs, want) {
			t.Errorf("expected start log to contain %q, got:\n%s", want, logs)
		}
	}
}

func TestRunCommand_UnreachableDatabase(t *testing.T) {
	t.Setenv("TASKMANAGER_DB_CONNECT_TIMEOUT", "200ms")

	_, logs, err := executeCommand(t, "run", "--db-type", "mongodb", "--db-url", "mongodb://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !document.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if !strings.Contains(logs, "Unable to connect to database!") {
		t.Fatalf("expected connection failure log, got:\n%s", logs)
	}
	if strings.Contains(logs, "Walkthrough started") {
		t.Fatal("no step may run after a connection failure")
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	_, _, err := executeCommand(t, "run", "--db-type", "cassandra")
	if err == nil || !strings.Contains(err.Error(), "invalid database.type") {
		t.Fatalf("expected config validation error, got %v", err)
	}
}

func TestHealthcheckCommand(t *testing.T) {
	out, _, err := executeCommand(t, "healthcheck", "--db-type", "memory")
	if err != nil {
		t.Fatalf("healthcheck failed: %v", err)
	}
	if !strings.Contains(out, "database") || !strings.Contains(out, "collections") || !strings.Contains(out, "healthy") {
		t.Fatalf("unexpected healthcheck output:\n%s", out)
	}
}

func TestHealthcheckCommand_Unreachable(t *testing.T) {
	t.Setenv("TASKMANAGER_DB_CONNECT_TIMEOUT", "200ms")

	_, _, err := executeCommand(t, "healthcheck", "--db-url", "mongodb://127.0.0.1:1")
	if !document.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Service:    taskmanager") || !strings.Contains(out, "Version:") {
		t.Fatalf("unexpected version output:\n%s", out)
	}
}

func TestVersionFlag(t *testing.T) {
	out, _, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(out, "taskmanager@dev (commit=unknown") {
		t.Fatalf("unexpected --version output:\n%s", out)
	}
}

func TestPrintVersion_FormatsBuildTime(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf, version.Info{Service: "svc", Version: "v1.2.3", Commit: "abc", BuildTime: "2024-03-01T10:00:00+02:00"})
	if !strings.Contains(buf.String(), "Build Time: Fri, 01 Mar 2024 08:00:00 UTC") {
		t.Fatalf("expected UTC build time, got:\n%s", buf.String())
	}

	buf.Reset()
	printVersion(&buf, version.Info{Service: "svc", Version: "dev", Commit: "unknown", BuildTime: "yesterday"})
	if !strings.Contains(buf.String(), "Build Time: yesterday") {
		t.Fatalf("unparsable build time is printed as is, got:\n%s", buf.String())
	}
}

func TestConfigValidateCommand(t *testing.T) {
	out, _, err := executeCommand(t, "config", "validate", "--db-type", "memory")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, _, err := executeCommand(t, "config", "validate", "--db-type", "mongodb", "--db-url", ""); err == nil {
		t.Fatal("expected validation failure for an empty url")
	}
}

func TestConfigShowCommand_RedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(secretsPath, []byte("database:\n  url: mongodb://admin:hunter2@db:27017\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	t.Setenv("TASKMANAGER_SECRETS_FILE", secretsPath)

	out, _, err := executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("expected secret to be redacted:\n%s", out)
	}
	if !strings.Contains(out, "***") || !strings.Contains(out, "task-manager-app") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, _, err = executeCommand(t, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("show --show-secrets failed: %v", err)
	}
	if !strings.Contains(out, "hunter2") {
		t.Fatalf("expected secret to be shown:\n%s", out)
	}
}

func TestApplySecretFileFlag(t *testing.T) {
	if err := applySecretFileFlag("taskmanager", ""); err != nil {
		t.Fatalf("empty path must be a no-op, got %v", err)
	}
	if err := applySecretFileFlag("taskmanager", t.TempDir()); err == nil {
		t.Fatal("expected directory to be rejected")
	}
	if err := applySecretFileFlag("taskmanager", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file to be rejected")
	}
}

func TestRedactSettingsMap(t *testing.T) {
	settings := map[string]interface{}{
		"database": map[string]interface{}{
			"url":           "mongodb://admin:pw@db",
			"database_name": "task-manager-app",
		},
		"run": map[string]interface{}{"sequential": true},
	}
	secrets := map[string]interface{}{
		"database": map[string]interface{}{"url": "mongodb://admin:pw@db", "session_token": ""},
	}

	got := redactSettingsMap(settings, secrets)
	db := got["database"].(map[string]interface{})
	if db["url"] != "***" {
		t.Fatalf("expected url to be redacted, got %v", db["url"])
	}
	if db["database_name"] != "task-manager-app" {
		t.Fatalf("expected database_name to be kept, got %v", db["database_name"])
	}
	if got["run"].(map[string]interface{})["sequential"] != true {
		t.Fatal("expected unrelated settings to be kept")
	}
	if shouldRedactSetting("") || shouldRedactSetting(nil) || !shouldRedactSetting(42) {
		t.Fatal("unexpected shouldRedactSetting result")
	}
}

func TestFormatSettings(t *testing.T) {
	empty, err := formatSettings(nil)
	if err != nil || empty != "{}\n" {
		t.Fatalf("expected empty document, got %q (%v)", empty, err)
	}
	out, err := formatSettings(setServiceNameSetting(nil, "taskmanager"))
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(out, "name: taskmanager") {
		t.Fatalf("unexpected yaml %q", out)
	}
}

func TestResolveServiceNameValue(t *testing.T) {
	tests := []struct {
		name              string
		currentConfigName string
		defaultService    string
		want              string
	}{
		{name: "configured value wins over default", currentConfigName: "from-config", defaultService: "from-cli", want: "from-config"},
		{name: "default used when config missing", currentConfigName: " ", defaultService: "from-cli", want: "from-cli"},
		{name: "taskmanager fallback", want: "taskmanager"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveServiceNameValue(tt.currentConfigName, tt.defaultService)
			if got != tt.want {
				t.Fatalf("resolveServiceNameValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckDependencies_Unhealthy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Type = config.DatabaseTypeMemory
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context makes every probe fail.
	err := CheckDependencies(ctx, &out, cfg, nopLogger(t))
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
}

func TestCommandContext(t *testing.T) {
	if commandContext(&cobra.Command{}) == nil {
		t.Fatal("expected background context for a command without one")
	}
}
