package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/taskmanager/pkg/repository/document"
)

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker creates a health checker for any component that implements Checkable
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// NewDatabaseChecker creates an AdapterChecker with the database timeout.
func NewDatabaseChecker(name string, db Checkable) *AdapterChecker {
	return NewAdapterChecker(name, db, 5*time.Second)
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	duration := time.Since(start)
	if err != nil {
		return CheckResult{
			Name:      c.name,
			Status:    StatusUnhealthy,
			Error:     err.Error(),
			Timestamp: time.Now(),
			Duration:  duration,
		}
	}
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// CollectionChecker verifies that every configured collection can be read.
// A reachable store whose collections cannot be counted is degraded; a
// connection-level failure is unhealthy.
type CollectionChecker struct {
	name        string
	exec        document.Executor
	collections []string
	timeout     time.Duration
}

// NewCollectionChecker creates a checker counting the records of collections.
func NewCollectionChecker(name string, exec document.Executor, collections ...string) *CollectionChecker {
	return &CollectionChecker{name: name, exec: exec, collections: collections, timeout: 5 * time.Second}
}

// Check counts the records of every collection and reports them as metadata.
func (c *CollectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := CheckResult{
		Name:     c.name,
		Status:   StatusHealthy,
		Message:  "All collections readable",
		Metadata: make(map[string]interface{}, len(c.collections)),
	}
	for _, collection := range c.collections {
		n, err := c.exec.Count(checkCtx, collection, nil)
		if err != nil {
			result.Message = ""
			result.Error = fmt.Sprintf("%s: %v", collection, err)
			if document.IsUnavailable(err) {
				result.Status = StatusUnhealthy
			} else {
				result.Status = StatusDegraded
			}
			break
		}
		result.Metadata[collection] = n
	}
	result.Timestamp = time.Now()
	result.Duration = time.Since(start)
	return result
}

// Name returns the name of the health check
func (c *CollectionChecker) Name() string {
	return c.name
}
