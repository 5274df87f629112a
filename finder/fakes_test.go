package finder_test

import (
	"context"
	"fmt"

	"github.com/haileyok/findtofollow/finder"
)

type fakeAPI struct {
	friends   []string
	followers []string
	profiles  map[string]finder.Profile

	friendsErr   error
	followersErr error
	lookupErr    error
	// fail the lookup call with this index, counting from zero
	failLookupAt int

	friendCalls   int
	lookups       [][]string
	followerLimit int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		profiles:     map[string]finder.Profile{},
		failLookupAt: -1,
	}
}

func (f *fakeAPI) ListFriendIds(ctx context.Context, actor string) ([]string, error) {
	f.friendCalls++
	if f.friendsErr != nil {
		return nil, f.friendsErr
	}
	return f.friends, nil
}

func (f *fakeAPI) ListFollowerIds(ctx context.Context, actor string, limit int) ([]string, error) {
	f.followerLimit = limit
	if f.followersErr != nil {
		return nil, f.followersErr
	}
	return f.followers[:min(limit, len(f.followers))], nil
}

func (f *fakeAPI) LookupProfiles(ctx context.Context, ids []string) ([]finder.Profile, error) {
	if len(ids) > finder.BatchSize {
		return nil, fmt.Errorf("too many ids: %d", len(ids))
	}
	idx := len(f.lookups)
	f.lookups = append(f.lookups, append([]string(nil), ids...))
	if f.lookupErr != nil && (f.failLookupAt < 0 || f.failLookupAt == idx) {
		return nil, f.lookupErr
	}

	var out []finder.Profile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) addProfiles(ps ...finder.Profile) {
	for _, p := range ps {
		f.profiles[p.Did] = p
	}
}

func dids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("did:plc:%s%04d", prefix, i)
	}
	return out
}

func profilesFor(ids []string) []finder.Profile {
	out := make([]finder.Profile, len(ids))
	for i, id := range ids {
		out[i] = finder.Profile{
			Did:            id,
			Handle:         fmt.Sprintf("user%d.bsky.social", i),
			FollowsCount:   100,
			FollowersCount: 100,
		}
	}
	return out
}

func profileDids(ps []finder.Profile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Did
	}
	return out
}
