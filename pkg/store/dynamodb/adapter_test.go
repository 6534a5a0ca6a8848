package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/nimburion/taskmanager/pkg/observability/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(string, ...any)                      {}
func (m *mockLogger) Info(string, ...any)                       {}
func (m *mockLogger) Warn(string, ...any)                       {}
func (m *mockLogger) Error(string, ...any)                      {}
func (m *mockLogger) With(...any) logger.Logger                 { return m }
func (m *mockLogger) WithContext(context.Context) logger.Logger { return m }

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(Config{}, &mockLogger{})
	if err == nil {
		t.Fatal("expected error for empty region")
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true, logger: &mockLogger{}}
	if err := a.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	a := &Adapter{}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestTableName(t *testing.T) {
	a := &Adapter{tablePrefix: "task-manager-app."}
	if got := a.TableName("users"); got != "task-manager-app.users" {
		t.Fatalf("unexpected table name %q", got)
	}
	if got := (&Adapter{}).TableName("tasks"); got != "tasks" {
		t.Fatalf("unexpected table name without prefix %q", got)
	}
}

func TestOperations_WhenClosed(t *testing.T) {
	a := &Adapter{logger: &mockLogger{}}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	calls := map[string]func() error{
		"PutItem": func() error {
			_, err := a.PutItem(ctx, &dynamodb.PutItemInput{})
			return err
		},
		"GetItem": func() error {
			_, err := a.GetItem(ctx, &dynamodb.GetItemInput{})
			return err
		},
		"UpdateItem": func() error {
			_, err := a.UpdateItem(ctx, &dynamodb.UpdateItemInput{})
			return err
		},
		"DeleteItem": func() error {
			_, err := a.DeleteItem(ctx, &dynamodb.DeleteItemInput{})
			return err
		},
		"BatchWriteItem": func() error {
			_, err := a.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{})
			return err
		},
		"Scan": func() error {
			_, err := a.Scan(ctx, &dynamodb.ScanInput{})
			return err
		},
		"EnsureTable": func() error {
			return a.EnsureTable(ctx, "users")
		},
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrClosed) {
			t.Fatalf("%s after Close: expected ErrClosed, got %v", name, err)
		}
	}
}

func TestIsConditionFailed(t *testing.T) {
	if IsConditionFailed(errors.New("x")) {
		t.Fatal("generic error must return false")
	}
	wrapped := fmt.Errorf("put item: %w", &types.ConditionalCheckFailedException{})
	if !IsConditionFailed(wrapped) {
		t.Fatal("expected wrapped condition failure to be detected")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed", err: ErrClosed, want: true},
		{name: "deadline", err: fmt.Errorf("scan: %w", context.DeadlineExceeded), want: true},
		{name: "network timeout", err: fmt.Errorf("send: %w", timeoutError{}), want: true},
		{name: "service error", err: &smithy.GenericAPIError{Code: "ValidationException"}, want: false},
		{name: "condition failed", err: &types.ConditionalCheckFailedException{}, want: false},
		{name: "generic", err: errors.New("x"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Fatalf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.withOperationTimeout(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}
