package network

import (
	"context"
	"errors"
)

// Result is one value emitted on a Stream.
type Result[T any] struct {
	Value T
	Err   error
}

// Stream delivers results of a network call. Consumers only read the first one.
type Stream[T any] <-chan Result[T]

var errEmptyStream = errors.New("stream closed without a result")

// Single returns a closed stream holding exactly one result.
func Single[T any](v T, err error) Stream[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: v, Err: err}
	close(ch)
	return ch
}

// Fail returns a closed stream holding err.
func Fail[T any](err error) Stream[T] {
	var zero T
	return Single(zero, err)
}

// First waits for the first terminal value of s. It returns ctx.Err() when ctx
// is done first; later values on s are ignored.
func First[T any](ctx context.Context, s Stream[T]) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res, ok := <-s:
		if !ok {
			return zero, &Error{Kind: ErrorKindUnknown, Message: errEmptyStream.Error(), Cause: errEmptyStream}
		}
		return res.Value, res.Err
	}
}
