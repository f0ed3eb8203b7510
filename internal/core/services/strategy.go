package services

import (
	"context"
	"errors"
	"fmt"
)

// errNoStrategy is returned by tryInOrder when the list is empty.
var errNoStrategy = errors.New("no strategy available")

// strategy is one way of answering a lookup. run reports done=true when its
// answer (or error) is final; done=false hands over to the next strategy and
// the error, if any, is kept for the combined failure.
type strategy[T any] struct {
	name string
	run  func(ctx context.Context) (value T, done bool, err error)
}

// tryInOrder runs strategies until one is done and returns its value and name.
// When none is done the collected errors are joined.
func tryInOrder[T any](ctx context.Context, strategies []strategy[T]) (T, string, error) {
	var zero T
	var errs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		value, done, err := s.run(ctx)
		if done {
			return value, s.name, err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	if len(errs) == 0 {
		return zero, "", errNoStrategy
	}
	return zero, "", errors.Join(errs...)
}
