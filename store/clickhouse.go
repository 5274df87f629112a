package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/haileyok/findtofollow/finder"
)

type ClickHouseArgs struct {
	Addr     string
	Database string
	User     string
	Pass     string
}

// ClickHouse buffers writes and sends them as one batch per table on Flush.
// Profiles written but not yet flushed are still reported by Contains and
// ReadMany.
type ClickHouse struct {
	conn driver.Conn

	mu             sync.Mutex
	pending        []finder.Profile
	pendingIdx     map[string]int
	pendingFriends []friendRow
}

type friendRow struct {
	Account string `ch:"account"`
	Did     string `ch:"did"`
}

func OpenClickHouse(ctx context.Context, args ClickHouseArgs) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{args.Addr},
		Auth: clickhouse.Auth{
			Database: args.Database,
			Username: args.User,
			Password: args.Pass,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return NewClickHouse(ctx, conn)
}

func NewClickHouse(ctx context.Context, conn driver.Conn) (*ClickHouse, error) {
	for _, q := range []string{createProfileTable, createFriendTable} {
		if err := conn.Exec(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return &ClickHouse{
		conn:       conn,
		pendingIdx: map[string]int{},
	}, nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

func (c *ClickHouse) Contains(ctx context.Context, did string) (bool, error) {
	c.mu.Lock()
	_, ok := c.pendingIdx[did]
	c.mu.Unlock()
	if ok {
		return true, nil
	}

	var n uint64
	if err := c.conn.QueryRow(ctx, `SELECT count() FROM ftf_profile WHERE did = ?`, did).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *ClickHouse) ReadMany(ctx context.Context, dids []string) ([]finder.Profile, error) {
	if len(dids) == 0 {
		return nil, nil
	}

	found := make(map[string]finder.Profile, len(dids))

	c.mu.Lock()
	for _, did := range dids {
		if i, ok := c.pendingIdx[did]; ok {
			found[did] = c.pending[i]
		}
	}
	c.mu.Unlock()

	var rows []finder.Profile
	if err := c.conn.Select(ctx, &rows, selectProfiles, dids); err != nil {
		return nil, err
	}
	for _, p := range rows {
		if _, ok := found[p.Did]; !ok {
			found[p.Did] = p
		}
	}

	return orderProfiles(dids, found), nil
}

func (c *ClickHouse) Write(ctx context.Context, p finder.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.pendingIdx[p.Did]; ok {
		c.pending[i] = p
		return nil
	}
	c.pendingIdx[p.Did] = len(c.pending)
	c.pending = append(c.pending, p)
	return nil
}

func (c *ClickHouse) MergeFriendIds(ctx context.Context, account string, dids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, did := range dids {
		c.pendingFriends = append(c.pendingFriends, friendRow{Account: account, Did: did})
	}
	return nil
}

func (c *ClickHouse) FriendIds(ctx context.Context, account string) ([]string, error) {
	var rows []friendRow
	if err := c.conn.Select(ctx, &rows, `SELECT DISTINCT account, did FROM ftf_friend WHERE account = ?`, account); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Did)
	}
	return out, nil
}

func (c *ClickHouse) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO ftf_profile (did, handle, display_name, description, avatar, follows_count, followers_count, created_at)`)
		if err != nil {
			return fmt.Errorf("failed to prepare profile batch: %w", err)
		}
		for i := range c.pending {
			if err := batch.AppendStruct(&c.pending[i]); err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append profile: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send profile batch: %w", err)
		}
		c.pending = nil
		c.pendingIdx = map[string]int{}
	}

	if len(c.pendingFriends) > 0 {
		batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO ftf_friend (account, did)`)
		if err != nil {
			return fmt.Errorf("failed to prepare friend batch: %w", err)
		}
		for i := range c.pendingFriends {
			if err := batch.AppendStruct(&c.pendingFriends[i]); err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append friend: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send friend batch: %w", err)
		}
		c.pendingFriends = nil
	}

	return nil
}

func orderProfiles(dids []string, found map[string]finder.Profile) []finder.Profile {
	out := make([]finder.Profile, 0, len(found))
	for _, did := range dids {
		if p, ok := found[did]; ok {
			out = append(out, p)
		}
	}
	return out
}

const createProfileTable = `
CREATE TABLE IF NOT EXISTS ftf_profile (
    did String,
    handle String,
    display_name String,
    description String,
    avatar String,
    follows_count Int64,
    followers_count Int64,
    created_at DateTime64(3),
    fetched_at DateTime64(3) DEFAULT now64(3)
)
ENGINE = ReplacingMergeTree(fetched_at)
ORDER BY did
	`

const createFriendTable = `
CREATE TABLE IF NOT EXISTS ftf_friend (
    account String,
    did String,
    merged_at DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree(merged_at)
ORDER BY (account, did)
	`

const selectProfiles = `
SELECT
    did,
    argMax(handle, fetched_at) AS handle,
    argMax(display_name, fetched_at) AS display_name,
    argMax(description, fetched_at) AS description,
    argMax(avatar, fetched_at) AS avatar,
    argMax(follows_count, fetched_at) AS follows_count,
    argMax(followers_count, fetched_at) AS followers_count,
    argMax(created_at, fetched_at) AS created_at
FROM ftf_profile
WHERE did IN (?)
GROUP BY did
	`
