package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ForEachLimit runs fn for every element with at most limit calls in flight
// and waits for all of them. One task failing or panicking never stops the
// others: the returned slice holds each task's error at its index.
func ForEachLimit[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) error) []error {
	if limit <= 0 {
		limit = 1
	}
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
