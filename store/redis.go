package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haileyok/findtofollow/finder"
	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix = "ftf:profile:"
	friendKeyPrefix  = "ftf:friends:"
)

type RedisArgs struct {
	Addr string
	Pass string
	DB   int
	// TTL bounds how long a cached profile is trusted. Zero keeps profiles forever.
	TTL time.Duration
}

// Redis stores profiles as JSON strings and friend ids as one set per
// account. Writes are queued and sent in a single pipeline on Flush.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	mu             sync.Mutex
	pending        []finder.Profile
	pendingIdx     map[string]int
	pendingFriends []friendRow
}

func OpenRedis(ctx context.Context, args RedisArgs) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         args.Addr,
		Password:     args.Pass,
		DB:           args.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedis(client, args.TTL), nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client:     client,
		ttl:        ttl,
		pendingIdx: map[string]int{},
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Contains(ctx context.Context, did string) (bool, error) {
	r.mu.Lock()
	_, ok := r.pendingIdx[did]
	r.mu.Unlock()
	if ok {
		return true, nil
	}

	n, err := r.client.Exists(ctx, profileKeyPrefix+did).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) ReadMany(ctx context.Context, dids []string) ([]finder.Profile, error) {
	if len(dids) == 0 {
		return nil, nil
	}

	found := make(map[string]finder.Profile, len(dids))
	var keys []string

	r.mu.Lock()
	for _, did := range dids {
		if i, ok := r.pendingIdx[did]; ok {
			found[did] = r.pending[i]
			continue
		}
		keys = append(keys, profileKeyPrefix+did)
	}
	r.mu.Unlock()

	if len(keys) > 0 {
		vals, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var p finder.Profile
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", keys[i], err)
			}
			found[p.Did] = p
		}
	}

	return orderProfiles(dids, found), nil
}

func (r *Redis) Write(ctx context.Context, p finder.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.pendingIdx[p.Did]; ok {
		r.pending[i] = p
		return nil
	}
	r.pendingIdx[p.Did] = len(r.pending)
	r.pending = append(r.pending, p)
	return nil
}

func (r *Redis) MergeFriendIds(ctx context.Context, account string, dids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, did := range dids {
		r.pendingFriends = append(r.pendingFriends, friendRow{Account: account, Did: did})
	}
	return nil
}

func (r *Redis) FriendIds(ctx context.Context, account string) ([]string, error) {
	dids, err := r.client.SMembers(ctx, friendKeyPrefix+account).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return dids, nil
}

func (r *Redis) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 && len(r.pendingFriends) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, p := range r.pending {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode profile %s: %w", p.Did, err)
		}
		pipe.Set(ctx, profileKeyPrefix+p.Did, string(b), r.ttl)
	}

	// one SADD per account, in the order accounts were first merged
	var accounts []string
	members := map[string][]any{}
	for _, f := range r.pendingFriends {
		if _, ok := members[f.Account]; !ok {
			accounts = append(accounts, f.Account)
		}
		members[f.Account] = append(members[f.Account], f.Did)
	}
	for _, a := range accounts {
		pipe.SAdd(ctx, friendKeyPrefix+a, members[a]...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush to redis: %w", err)
	}

	r.pending = nil
	r.pendingIdx = map[string]int{}
	r.pendingFriends = nil
	return nil
}
