package finder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// BatchSize is the largest number of ids the social API accepts in a single
// profile lookup.
const BatchSize = 100

type Profile struct {
	Did            string    `json:"did" ch:"did"`
	Handle         string    `json:"handle" ch:"handle"`
	DisplayName    string    `json:"displayName" ch:"display_name"`
	Description    string    `json:"description" ch:"description"`
	Avatar         string    `json:"avatar" ch:"avatar"`
	FollowsCount   int64     `json:"followsCount" ch:"follows_count"`
	FollowersCount int64     `json:"followersCount" ch:"followers_count"`
	CreatedAt      time.Time `json:"createdAt" ch:"created_at"`
}

type SocialAPI interface {
	// ListFriendIds returns every account the actor follows.
	ListFriendIds(ctx context.Context, actor string) ([]string, error)
	// ListFollowerIds returns at most limit follower ids of actor, without duplicates.
	ListFollowerIds(ctx context.Context, actor string, limit int) ([]string, error)
	// LookupProfiles accepts at most BatchSize ids.
	LookupProfiles(ctx context.Context, ids []string) ([]Profile, error)
}

type ProfileCache interface {
	Contains(ctx context.Context, did string) (bool, error)
	ReadMany(ctx context.Context, dids []string) ([]Profile, error)
	Write(ctx context.Context, p Profile) error
	Flush(ctx context.Context) error
	MergeFriendIds(ctx context.Context, account string, dids []string) error
	FriendIds(ctx context.Context, account string) ([]string, error)
}

type Finder struct {
	api     SocialAPI
	cache   ProfileCache
	fetcher *BatchFetcher
	logger  *slog.Logger
}

type Args struct {
	API    SocialAPI
	Cache  ProfileCache
	Logger *slog.Logger
}

func New(args Args) *Finder {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return &Finder{
		api:     args.API,
		cache:   args.Cache,
		fetcher: NewBatchFetcher(args.API, args.Cache),
		logger:  args.Logger.With("component", "finder"),
	}
}

// Find runs the whole pipeline for req. Diagnostics are appended to trace,
// which the caller owns and may render with Report even when Find fails.
func (f *Finder) Find(ctx context.Context, trace *Trace, req FilterRequest) ([]Profile, error) {
	if err := req.Validate(); err != nil {
		trace.Logf("Rejected request: %v", err)
		return nil, err
	}

	start := time.Now()
	logger := f.logger.With("run", trace.ID(), "source", req.SourceActor, "account", req.Account)
	logger.Info("starting run", "limit", req.FollowerLimit)

	if err := f.buildFriendIds(ctx, trace, req); err != nil {
		logger.Error("error building friend ids", "error", err)
		return nil, err
	}
	trace.Checkpoint("Friends")

	pool, err := f.api.ListFollowerIds(ctx, req.SourceActor, req.FollowerLimit)
	if err != nil {
		logger.Error("error listing follower ids", "error", err)
		return nil, &TransportError{Op: "list follower ids", Err: err}
	}
	trace.Logf("Found %d followers of %s.", len(pool), req.SourceActor)
	trace.Checkpoint("Followers")

	friendIds, err := f.cache.FriendIds(ctx, req.Account)
	if err != nil {
		logger.Error("error reading friend ids", "error", err)
		return nil, fmt.Errorf("failed to read friend ids: %w", err)
	}
	pool, removed := RemoveAlreadyFollowed(pool, friendIds)
	trace.Logf("Removed a total of %d people because you are already following them.", removed)
	trace.Checkpoint("Reduce")

	profiles, stats, err := f.fetcher.Fetch(ctx, trace, pool, req)
	if err != nil {
		logger.Error("error fetching profiles", "error", err)
		return nil, err
	}
	trace.Checkpoint("Fetch")

	if len(profiles) == 0 {
		trace.Logf("No accounts matched your filters.")
	} else {
		trace.Logf("%d accounts matched your filters.", len(profiles))
	}

	runDuration.Observe(time.Since(start).Seconds())
	logger.Info("finished run",
		"windows", len(stats.Windows),
		"fresh", stats.Fresh(),
		"cached", stats.Cached(),
		"matched", len(profiles),
		"took", time.Since(start),
	)

	return profiles, nil
}

func (f *Finder) buildFriendIds(ctx context.Context, trace *Trace, req FilterRequest) error {
	friendIds, err := f.api.ListFriendIds(ctx, req.Account)
	if err != nil {
		return &TransportError{Op: "list friend ids", Err: err}
	}

	trace.Logf("You have %d friends according to the network.", len(friendIds))

	if err := f.cache.MergeFriendIds(ctx, req.Account, friendIds); err != nil {
		return fmt.Errorf("failed to merge friend ids: %w", err)
	}
	if err := f.cache.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush friend ids: %w", err)
	}

	return nil
}
