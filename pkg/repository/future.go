package repository

import "fmt"

// Future is the pending result of an asynchronous call. The result is published once.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn in its own goroutine and returns its future. A panic in fn is reported by Await as
// an error.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				var zero T
				f.value, f.err = zero, fmt.Errorf("%w: %v", ErrAsyncPanic, p)
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call completes and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}
