package pagination

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Keyed is implemented by feed items.
type Keyed interface {
	Key() Cursor
}

// Source returns at most limit items strictly after the cursor (all items when after is nil),
// newest first by (created_at, id).
type Source[T Keyed] func(ctx context.Context, after *Cursor, limit int) ([]T, error)

type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// Fetch queries every source concurrently with the same cursor and limit and merges the results.
func Fetch[T Keyed](ctx context.Context, after *Cursor, limit int, sources ...Source[T]) (Page[T], error) {
	limit = ClampLimit(limit)
	batches := make([][]T, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			items, err := src(gctx, after, limit)
			if err != nil {
				return err
			}
			batches[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}

	return Merge(limit, batches...), nil
}

// Merge combines batches that were each fetched with the same cursor and limit.
// A further page exists when any batch came back full or the merged items overflow the limit.
func Merge[T Keyed](limit int, batches ...[]T) Page[T] {
	total := 0
	hasMore := false
	for _, b := range batches {
		total += len(b)
		if len(b) >= limit {
			hasMore = true
		}
	}

	items := make([]T, 0, total)
	for _, b := range batches {
		items = append(items, b...)
	}
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(a.Key(), b.Key())
	})
	if len(items) > limit {
		items = items[:limit]
		hasMore = true
	}

	page := Page[T]{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		next := items[len(items)-1].Key().Encode()
		page.NextCursor = &next
	}
	return page
}
