package store

import (
	"context"
	"sync"

	"github.com/haileyok/findtofollow/finder"
)

// Memory keeps everything in process. Writes are visible immediately, so
// Flush has nothing to do.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]finder.Profile
	friends  map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		profiles: map[string]finder.Profile{},
		friends:  map[string]map[string]struct{}{},
	}
}

func (m *Memory) Contains(ctx context.Context, did string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.profiles[did]
	return ok, nil
}

func (m *Memory) ReadMany(ctx context.Context, dids []string) ([]finder.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []finder.Profile
	for _, did := range dids {
		if p, ok := m.profiles[did]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) Write(ctx context.Context, p finder.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.Did] = p
	return nil
}

func (m *Memory) Flush(ctx context.Context) error {
	return nil
}

func (m *Memory) MergeFriendIds(ctx context.Context, account string, dids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.friends[account]
	if !ok {
		set = map[string]struct{}{}
		m.friends[account] = set
	}
	for _, did := range dids {
		set[did] = struct{}{}
	}
	return nil
}

func (m *Memory) FriendIds(ctx context.Context, account string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for did := range m.friends[account] {
		out = append(out, did)
	}
	return out, nil
}
