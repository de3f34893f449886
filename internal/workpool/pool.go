// Package workpool runs independent per-device work under a fixed
// concurrency ceiling and joins the results in input order.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most limit calls in flight and returns
// the results in the order of items. fn must not panic; results are joined
// before Map returns. A limit below one is treated as one.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) R) []R {
	if limit < 1 {
		limit = 1
	}
	results := make([]R, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
