package document

import "context"

// Result carries either the value of a completed operation or its error.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn in its own goroutine and returns a channel that receives exactly
// one Result once fn completes. The channel is buffered, so an abandoned
// future never blocks the goroutine.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		value, err := fn(ctx)
		out <- Result[T]{Value: value, Err: err}
	}()
	return out
}

// Await blocks until the future completes or ctx is done.
func Await[T any](ctx context.Context, future <-chan Result[T]) (T, error) {
	select {
	case res, ok := <-future:
		if !ok {
			var zero T
			return zero, context.Canceled
		}
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
