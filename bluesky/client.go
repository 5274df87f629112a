package bluesky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/haileyok/findtofollow/finder"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultHost = "https://public.api.bsky.app"

	// app.bsky.graph.* list endpoints return at most this many entries per page
	pageSize = 100
	// app.bsky.actor.getProfiles accepts at most this many actors
	profilesPerCall = 25
)

type ClientArgs struct {
	Host              string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client implements finder.SocialAPI against an AppView's XRPC endpoints.
// Every request waits on a shared rate limiter and passes through a circuit
// breaker, so a failing AppView fails fast instead of timing out per window.
type Client struct {
	xrpc    *xrpc.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(args ClientArgs) *Client {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if args.Host == "" {
		args.Host = DefaultHost
	}
	if args.RequestsPerSecond <= 0 {
		args.RequestsPerSecond = 10
	}
	if args.HTTPClient == nil {
		args.HTTPClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	logger := args.Logger.With("component", "bluesky")

	st := gobreaker.Settings{
		Name:     "appview",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		xrpc: &xrpc.Client{
			Client: args.HTTPClient,
			Host:   args.Host,
		},
		limiter: rate.NewLimiter(rate.Limit(args.RequestsPerSecond), 1),
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsClientError reports whether err is an XRPC response rejecting the request
// itself, such as an unknown handle. Rate limiting is not a client error.
func IsClientError(err error) bool {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode >= 400 && xe.StatusCode < 500 && xe.StatusCode != http.StatusTooManyRequests
}

// ResolveDid turns a handle into a DID. Input that already is a DID is
// returned unchanged.
func (c *Client) ResolveDid(ctx context.Context, actor string) (string, error) {
	actor = strings.TrimPrefix(actor, "@")
	if strings.HasPrefix(actor, "did:") {
		return actor, nil
	}

	var out *atproto.IdentityResolveHandle_Output
	if err := c.call(ctx, func() error {
		var err error
		out, err = atproto.IdentityResolveHandle(ctx, c.xrpc, actor)
		return err
	}); err != nil {
		if IsClientError(err) {
			return "", &finder.ConfigError{Field: "actor", Reason: fmt.Sprintf("%q could not be resolved", actor)}
		}
		return "", fmt.Errorf("failed to resolve handle %s: %w", actor, err)
	}

	return out.Did, nil
}

func (c *Client) ListFriendIds(ctx context.Context, actor string) ([]string, error) {
	var (
		dids   []string
		cursor string
	)
	for {
		var out *bsky.GraphGetFollows_Output
		if err := c.call(ctx, func() error {
			var err error
			out, err = bsky.GraphGetFollows(ctx, c.xrpc, actor, cursor, pageSize)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to get follows of %s: %w", actor, err)
		}

		for _, f := range out.Follows {
			dids = append(dids, f.Did)
		}

		if out.Cursor == nil || *out.Cursor == "" || len(out.Follows) == 0 {
			break
		}
		cursor = *out.Cursor
	}

	c.logger.Debug("listed friends", "actor", actor, "count", len(dids))

	return dids, nil
}

func (c *Client) ListFollowerIds(ctx context.Context, actor string, limit int) ([]string, error) {
	var (
		dids   []string
		cursor string
	)
	seen := map[string]struct{}{}

	for len(dids) < limit {
		n := min(limit-len(dids), pageSize)

		var out *bsky.GraphGetFollowers_Output
		if err := c.call(ctx, func() error {
			var err error
			out, err = bsky.GraphGetFollowers(ctx, c.xrpc, actor, cursor, int64(n))
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to get followers of %s: %w", actor, err)
		}

		for _, f := range out.Followers {
			if _, ok := seen[f.Did]; ok {
				continue
			}
			seen[f.Did] = struct{}{}
			dids = append(dids, f.Did)
			if len(dids) == limit {
				break
			}
		}

		if out.Cursor == nil || *out.Cursor == "" || len(out.Followers) == 0 {
			break
		}
		cursor = *out.Cursor
	}

	c.logger.Debug("listed followers", "actor", actor, "count", len(dids), "limit", limit)

	return dids, nil
}

func (c *Client) LookupProfiles(ctx context.Context, dids []string) ([]finder.Profile, error) {
	if len(dids) > finder.BatchSize {
		return nil, fmt.Errorf("lookup of %d profiles exceeds the limit of %d", len(dids), finder.BatchSize)
	}

	var profiles []finder.Profile
	for start := 0; start < len(dids); start += profilesPerCall {
		chunk := dids[start:min(start+profilesPerCall, len(dids))]

		var out *bsky.ActorGetProfiles_Output
		if err := c.call(ctx, func() error {
			var err error
			out, err = bsky.ActorGetProfiles(ctx, c.xrpc, chunk)
			return err
		}); err != nil {
			return nil, fmt.Errorf("failed to get profiles: %w", err)
		}

		for _, pv := range out.Profiles {
			profiles = append(profiles, c.profileFromView(pv))
		}
	}

	return profiles, nil
}

func (c *Client) profileFromView(pv *bsky.ActorDefs_ProfileViewDetailed) finder.Profile {
	p := finder.Profile{
		Did:            pv.Did,
		Handle:         pv.Handle,
		DisplayName:    deref(pv.DisplayName),
		Description:    deref(pv.Description),
		Avatar:         deref(pv.Avatar),
		FollowsCount:   derefInt(pv.FollowsCount),
		FollowersCount: derefInt(pv.FollowersCount),
	}

	if pv.CreatedAt != nil && *pv.CreatedAt != "" {
		t, err := dateparse.ParseAny(*pv.CreatedAt)
		if err != nil {
			c.logger.Warn("unable to parse profile created at", "did", pv.Did, "createdAt", *pv.CreatedAt, "error", err)
		} else {
			p.CreatedAt = t.UTC()
		}
	}

	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
