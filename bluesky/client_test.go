package bluesky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/haileyok/findtofollow/finder"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppview struct {
	mu        sync.Mutex
	followers []string
	follows   []string
	hits      map[string]int
	limits    []int
	batches   [][]string
	failing   bool
	unknown   bool
}

func (f *fakeAppview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits[r.URL.Path]++
	q := r.URL.Query()

	if f.failing {
		w.WriteHeader(500)
		json.NewEncoder(w).Encode(map[string]string{"error": "InternalServerError"})
		return
	}

	switch r.URL.Path {
	case "/xrpc/app.bsky.graph.getFollowers":
		page, cursor := f.page(f.followers, q.Get("cursor"), q.Get("limit"))
		writeJSON(w, map[string]any{"subject": profileView(q.Get("actor")), "followers": page, "cursor": cursor})
	case "/xrpc/app.bsky.graph.getFollows":
		page, cursor := f.page(f.follows, q.Get("cursor"), q.Get("limit"))
		writeJSON(w, map[string]any{"subject": profileView(q.Get("actor")), "follows": page, "cursor": cursor})
	case "/xrpc/app.bsky.actor.getProfiles":
		actors := q["actors"]
		f.batches = append(f.batches, actors)
		var profiles []map[string]any
		for i, a := range actors {
			profiles = append(profiles, map[string]any{
				"did":            a,
				"handle":         fmt.Sprintf("user%d.test", i),
				"displayName":    "User",
				"description":    "hello",
				"followersCount": 10 * (i + 1),
				"followsCount":   i,
				"createdAt":      "2023-04-12T17:22:38.453Z",
			})
		}
		writeJSON(w, map[string]any{"profiles": profiles})
	case "/xrpc/com.atproto.identity.resolveHandle":
		if f.unknown {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(400)
			json.NewEncoder(w).Encode(map[string]string{"error": "InvalidRequest", "message": "Unable to resolve handle"})
			return
		}
		writeJSON(w, map[string]any{"did": "did:plc:" + q.Get("handle")})
	default:
		w.WriteHeader(404)
	}
}

func (f *fakeAppview) page(all []string, cursor, limit string) ([]map[string]any, string) {
	start, _ := strconv.Atoi(cursor)
	n, _ := strconv.Atoi(limit)
	if n == 0 {
		n = 50
	}
	f.limits = append(f.limits, n)

	end := min(start+n, len(all))
	var out []map[string]any
	for _, did := range all[start:end] {
		out = append(out, profileView(did))
	}

	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return out, next
}

func profileView(did string) map[string]any {
	return map[string]any{"did": did, "handle": "h.test"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func setupClientTest(t *testing.T) (*Client, *fakeAppview) {
	t.Helper()

	av := &fakeAppview{hits: map[string]int{}}
	srv := httptest.NewServer(av)
	t.Cleanup(srv.Close)

	c := NewClient(ClientArgs{
		Host:              srv.URL,
		RequestsPerSecond: 1000,
		HTTPClient:        srv.Client(),
	})
	return c, av
}

func didList(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("did:plc:%s%d", prefix, i)
	}
	return out
}

func TestClient_ListFollowerIds(t *testing.T) {
	c, av := setupClientTest(t)
	av.followers = didList("f", 250)

	got, err := c.ListFollowerIds(context.Background(), "source.test", 230)
	require.NoError(t, err)
	assert.Equal(t, av.followers[:230], got)
	assert.Equal(t, []int{100, 100, 30}, av.limits)
}

func TestClient_ListFollowerIdsStopsAtEnd(t *testing.T) {
	c, av := setupClientTest(t)
	av.followers = didList("f", 42)

	got, err := c.ListFollowerIds(context.Background(), "source.test", 1000)
	require.NoError(t, err)
	assert.Len(t, got, 42)
	assert.Equal(t, 1, av.hits["/xrpc/app.bsky.graph.getFollowers"])
}

func TestClient_ListFollowerIdsDedupes(t *testing.T) {
	c, av := setupClientTest(t)
	av.followers = append(didList("f", 100), didList("f", 20)...)

	got, err := c.ListFollowerIds(context.Background(), "source.test", 500)
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestClient_ListFriendIds(t *testing.T) {
	c, av := setupClientTest(t)
	av.follows = didList("x", 205)

	got, err := c.ListFriendIds(context.Background(), "me.test")
	require.NoError(t, err)
	assert.Equal(t, av.follows, got)
	assert.Equal(t, 3, av.hits["/xrpc/app.bsky.graph.getFollows"])
}

func TestClient_LookupProfiles(t *testing.T) {
	c, av := setupClientTest(t)
	ids := didList("p", 60)

	got, err := c.LookupProfiles(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, got, 60)

	require.Len(t, av.batches, 3)
	assert.Len(t, av.batches[0], 25)
	assert.Len(t, av.batches[1], 25)
	assert.Len(t, av.batches[2], 10)

	p := got[1]
	assert.True(t, p.CreatedAt.Equal(time.Date(2023, 4, 12, 17, 22, 38, 453_000_000, time.UTC)), "created at %s", p.CreatedAt)
	p.CreatedAt = time.Time{}
	assert.Equal(t, finder.Profile{
		Did:            "did:plc:p1",
		Handle:         "user1.test",
		DisplayName:    "User",
		Description:    "hello",
		FollowsCount:   1,
		FollowersCount: 20,
	}, p)
}

func TestClient_LookupProfilesRejectsOversizedBatch(t *testing.T) {
	c, av := setupClientTest(t)

	_, err := c.LookupProfiles(context.Background(), didList("p", finder.BatchSize+1))
	require.Error(t, err)
	assert.Empty(t, av.batches)
}

func TestClient_ResolveDid(t *testing.T) {
	c, av := setupClientTest(t)
	ctx := context.Background()

	did, err := c.ResolveDid(ctx, "did:plc:already")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:already", did)
	assert.Equal(t, 0, av.hits["/xrpc/com.atproto.identity.resolveHandle"])

	did, err = c.ResolveDid(ctx, "@alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice.test", did)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	c, av := setupClientTest(t)
	av.failing = true
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.LookupProfiles(ctx, []string{"did:plc:a"})
		require.Error(t, err)
	}
	assert.Equal(t, 3, av.hits["/xrpc/app.bsky.actor.getProfiles"])

	_, err := c.LookupProfiles(ctx, []string{"did:plc:a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, av.hits["/xrpc/app.bsky.actor.getProfiles"])
}

func TestClient_UnknownHandlesDoNotTripBreaker(t *testing.T) {
	c, av := setupClientTest(t)
	av.unknown = true
	av.followers = didList("f", 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.ResolveDid(ctx, "typo.bsky.social")
		require.Error(t, err)
		assert.ErrorIs(t, err, finder.ErrInvalidRequest)
	}
	assert.Equal(t, 5, av.hits["/xrpc/com.atproto.identity.resolveHandle"])
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())

	got, err := c.ListFollowerIds(ctx, "did:plc:healthy", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&xrpc.Error{StatusCode: 400}, true},
		{&xrpc.Error{StatusCode: 404}, true},
		{fmt.Errorf("wrapped: %w", &xrpc.Error{StatusCode: 401}), true},
		{&xrpc.Error{StatusCode: 429}, false},
		{&xrpc.Error{StatusCode: 500}, false},
		{&xrpc.Error{StatusCode: 502}, false},
		{errors.New("connection refused"), false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsClientError(tt.err), "%v", tt.err)
	}
}
