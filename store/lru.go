package store

import (
	"context"
	"time"

	"github.com/haileyok/findtofollow/finder"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU keeps recently seen profiles in process in front of a slower store.
// Entries expire after ttl so a profile is never served from memory longer
// than the backing store would keep it. A ttl of zero never expires.
// Friend ids are not cached and go straight to the backing store.
type LRU struct {
	next     finder.ProfileCache
	profiles *expirable.LRU[string, finder.Profile]
}

func NewLRU(next finder.ProfileCache, size int, ttl time.Duration) *LRU {
	return &LRU{
		next:     next,
		profiles: expirable.NewLRU[string, finder.Profile](size, nil, ttl),
	}
}

func (l *LRU) Contains(ctx context.Context, did string) (bool, error) {
	// Get, unlike Contains, ignores entries past their ttl
	if _, ok := l.profiles.Get(did); ok {
		return true, nil
	}
	return l.next.Contains(ctx, did)
}

func (l *LRU) ReadMany(ctx context.Context, dids []string) ([]finder.Profile, error) {
	found := make(map[string]finder.Profile, len(dids))
	var missing []string
	for _, did := range dids {
		if p, ok := l.profiles.Get(did); ok {
			found[did] = p
			continue
		}
		missing = append(missing, did)
	}

	if len(missing) > 0 {
		ps, err := l.next.ReadMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			l.profiles.Add(p.Did, p)
			found[p.Did] = p
		}
	}

	return orderProfiles(dids, found), nil
}

func (l *LRU) Write(ctx context.Context, p finder.Profile) error {
	if err := l.next.Write(ctx, p); err != nil {
		return err
	}
	l.profiles.Add(p.Did, p)
	return nil
}

func (l *LRU) Flush(ctx context.Context) error {
	return l.next.Flush(ctx)
}

func (l *LRU) MergeFriendIds(ctx context.Context, account string, dids []string) error {
	return l.next.MergeFriendIds(ctx, account, dids)
}

func (l *LRU) FriendIds(ctx context.Context, account string) ([]string, error) {
	return l.next.FriendIds(ctx, account)
}
