package logger

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultAsyncQueueSize = 1024

// AsyncConfig mirrors the observability.async_logging configuration block.
type AsyncConfig struct {
	Enabled      bool
	QueueSize    int
	WorkerCount  int
	DropWhenFull bool
}

// pending is one log call waiting for a writer goroutine.
type pending struct {
	target Logger
	level  LogLevel
	msg    string
	args   []any
}

// logQueue is shared by an AsyncLogger and every child derived from it.
type logQueue struct {
	entries      chan pending
	dropWhenFull bool
	dropped      atomic.Int64
	closed       atomic.Bool
	closeOnce    sync.Once
	writers      sync.WaitGroup
}

// AsyncLogger hands log calls to writer goroutines so walkthrough steps do
// not block on the log sink. Entries logged after Close are written inline.
type AsyncLogger struct {
	base  Logger
	queue *logQueue
}

// WrapAsync returns base unchanged when cfg is disabled.
func WrapAsync(base Logger, cfg AsyncConfig) Logger {
	if !cfg.Enabled {
		return base
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultAsyncQueueSize
	}
	writers := max(cfg.WorkerCount, 1)

	q := &logQueue{
		entries:      make(chan pending, size),
		dropWhenFull: cfg.DropWhenFull,
	}
	q.writers.Add(writers)
	for range writers {
		go func() {
			defer q.writers.Done()
			for p := range q.entries {
				write(p.target, p.level, p.msg, p.args)
			}
		}()
	}
	return &AsyncLogger{base: base, queue: q}
}

func (l *AsyncLogger) Debug(msg string, args ...any) { l.submit(DebugLevel, msg, args) }
func (l *AsyncLogger) Info(msg string, args ...any)  { l.submit(InfoLevel, msg, args) }
func (l *AsyncLogger) Warn(msg string, args ...any)  { l.submit(WarnLevel, msg, args) }
func (l *AsyncLogger) Error(msg string, args ...any) { l.submit(ErrorLevel, msg, args) }

// With returns a child sharing the same queue.
func (l *AsyncLogger) With(args ...any) Logger {
	return &AsyncLogger{base: l.base.With(args...), queue: l.queue}
}

// WithContext returns a child sharing the same queue.
func (l *AsyncLogger) WithContext(ctx context.Context) Logger {
	return &AsyncLogger{base: l.base.WithContext(ctx), queue: l.queue}
}

// Dropped reports how many entries were discarded because the queue was full.
func (l *AsyncLogger) Dropped() int64 {
	return l.queue.dropped.Load()
}

// Close drains the queue, waits for the writers and reports dropped entries
// through the underlying logger.
func (l *AsyncLogger) Close() {
	l.queue.closeOnce.Do(func() {
		l.queue.closed.Store(true)
		close(l.queue.entries)
		l.queue.writers.Wait()
		if n := l.queue.dropped.Load(); n > 0 {
			l.base.Warn("async logger dropped entries", "dropped", n)
		}
	})
}

func (l *AsyncLogger) submit(level LogLevel, msg string, args []any) {
	if l.queue.closed.Load() {
		write(l.base, level, msg, args)
		return
	}

	p := pending{target: l.base, level: level, msg: msg, args: args}
	if !l.queue.dropWhenFull {
		l.queue.entries <- p
		return
	}
	select {
	case l.queue.entries <- p:
	default:
		l.queue.dropped.Add(1)
	}
}

func write(target Logger, level LogLevel, msg string, args []any) {
	switch level {
	case DebugLevel:
		target.Debug(msg, args...)
	case WarnLevel:
		target.Warn(msg, args...)
	case ErrorLevel:
		target.Error(msg, args...)
	default:
		target.Info(msg, args...)
	}
}

// Flush closes log when it is asynchronous, then syncs the zap core
// underneath. Call it once before the process exits.
func Flush(log Logger) error {
	if async, ok := log.(*AsyncLogger); ok {
		async.Close()
		log = async.base
	}
	if s, ok := log.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}
