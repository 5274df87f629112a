package finder

import (
	"context"
	"fmt"
)

// IdPartition splits one window of ids by whether their profile is already
// cached. Both slices keep the order of the window.
type IdPartition struct {
	CachedIds []string
	FreshIds  []string
}

type Window struct {
	Offset int
	Size   int
	Fresh  int
	Cached int
	Passed int
}

type FetchStats struct {
	Windows []Window
}

func (s FetchStats) Fresh() int {
	var n int
	for _, w := range s.Windows {
		n += w.Fresh
	}
	return n
}

func (s FetchStats) Cached() int {
	var n int
	for _, w := range s.Windows {
		n += w.Cached
	}
	return n
}

type BatchFetcher struct {
	api       SocialAPI
	cache     ProfileCache
	batchSize int
}

func NewBatchFetcher(api SocialAPI, cache ProfileCache) *BatchFetcher {
	return &BatchFetcher{
		api:       api,
		cache:     cache,
		batchSize: BatchSize,
	}
}

// Fetch walks pool in windows of at most BatchSize ids, never going past
// req.FollowerLimit, and returns the profiles that pass the request's
// criteria. Any error aborts the walk and no profiles are returned.
func (b *BatchFetcher) Fetch(ctx context.Context, trace *Trace, pool []string, req FilterRequest) ([]Profile, FetchStats, error) {
	criteria := NewCriteria(req)
	limit := req.FollowerLimit

	var (
		filtered []Profile
		stats    FetchStats
	)

	offset := 0
	window := b.batchSize
	for (offset+window <= limit || offset == 0) && offset <= len(pool) {
		end := min(offset+window, len(pool), limit)
		if end < offset {
			end = offset
		}
		ids := pool[offset:end]

		part, err := b.partition(ctx, ids)
		if err != nil {
			return nil, stats, err
		}
		trace.Logf("Pulling fresh profiles for %d users. Had %d cached.", len(part.FreshIds), len(part.CachedIds))

		fresh, err := b.fetchFresh(ctx, part.FreshIds)
		if err != nil {
			return nil, stats, err
		}

		var cached []Profile
		if len(part.CachedIds) > 0 {
			cached, err = b.cache.ReadMany(ctx, part.CachedIds)
			if err != nil {
				return nil, stats, fmt.Errorf("failed to read cached profiles: %w", err)
			}
		}

		unfiltered := make([]Profile, 0, len(fresh)+len(cached))
		unfiltered = append(unfiltered, fresh...)
		unfiltered = append(unfiltered, cached...)

		passed := criteria.Filter(unfiltered)
		filtered = append(filtered, passed...)

		stats.Windows = append(stats.Windows, Window{
			Offset: offset,
			Size:   len(ids),
			Fresh:  len(part.FreshIds),
			Cached: len(part.CachedIds),
			Passed: len(passed),
		})
		windowsProcessed.Inc()
		profilesFetched.WithLabelValues("fresh").Add(float64(len(fresh)))
		profilesFetched.WithLabelValues("cached").Add(float64(len(cached)))
		profilesPassed.Add(float64(len(passed)))

		offset += window
		if offset+window > limit {
			window = max(limit-offset, 1)
		}
	}

	return filtered, stats, nil
}

func (b *BatchFetcher) partition(ctx context.Context, ids []string) (IdPartition, error) {
	var part IdPartition
	for _, id := range ids {
		ok, err := b.cache.Contains(ctx, id)
		if err != nil {
			return IdPartition{}, fmt.Errorf("failed to check profile cache: %w", err)
		}
		if ok {
			part.CachedIds = append(part.CachedIds, id)
		} else {
			part.FreshIds = append(part.FreshIds, id)
		}
	}
	return part, nil
}

// fetchFresh looks up ids that are not cached yet and writes every returned
// profile through to the cache.
func (b *BatchFetcher) fetchFresh(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	profiles, err := b.api.LookupProfiles(ctx, ids)
	if err != nil {
		return nil, &TransportError{Op: "lookup profiles", Err: err}
	}

	for _, p := range profiles {
		if err := b.cache.Write(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to cache profile %s: %w", p.Did, err)
		}
	}
	if err := b.cache.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush profile cache: %w", err)
	}

	return profiles, nil
}
