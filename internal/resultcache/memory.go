package resultcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

const defaultMaxEntries = 10000

// Memory is a process-local Store. Expired entries are purged lazily on
// every call instead of by a timer.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*domain.ResultSet
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	newToken   func() (string, error)
}

type MemoryOption func(*Memory)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

func withTokenFunc(fn func() (string, error)) MemoryOption {
	return func(m *Memory) {
		m.newToken = fn
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]*domain.ResultSet),
		ttl:        DefaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		newToken:   NewToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(_ context.Context, ownerID int64, items []domain.MatchResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweepLocked(now)

	var token string
	for {
		next, err := m.newToken()
		if err != nil {
			return "", err
		}
		if _, taken := m.entries[next]; !taken {
			token = next
			break
		}
	}
	m.entries[token] = &domain.ResultSet{
		Token:     token,
		OwnerID:   ownerID,
		Items:     domain.CloneMatchResults(items),
		CreatedAt: now,
	}
	m.trimLocked(token)
	metrics.ResultCacheOpsTotal.WithLabelValues("create", "ok").Inc()
	metrics.ResultCacheEntries.Set(float64(len(m.entries)))
	return token, nil
}

func (m *Memory) Get(_ context.Context, token string, callerID int64) (domain.ResultSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, err := m.lookupLocked(token, callerID)
	if err != nil {
		return domain.ResultSet{}, err
	}
	cloned := *set
	cloned.Items = domain.CloneMatchResults(set.Items)
	return cloned, nil
}

func (m *Memory) GetPage(_ context.Context, token string, callerID int64, page, pageSize int) (domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, err := m.lookupLocked(token, callerID)
	if err != nil {
		return domain.Page{}, err
	}
	result, err := Paginate(*set, page, pageSize)
	if err != nil {
		metrics.ResultCacheOpsTotal.WithLabelValues("page", "out_of_range").Inc()
		return domain.Page{}, err
	}
	metrics.ResultCacheOpsTotal.WithLabelValues("page", "ok").Inc()
	return result, nil
}

func (m *Memory) RemoveItem(_ context.Context, token string, loc domain.Locator) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(m.now())
	set, ok := m.entries[token]
	if !ok {
		metrics.ResultCacheOpsTotal.WithLabelValues("remove", "not_found").Inc()
		return 0, domain.ErrCacheNotFound
	}
	if items, removed := removeLocator(set.Items, loc); removed {
		set.Items = items
		metrics.ResultCacheOpsTotal.WithLabelValues("remove", "ok").Inc()
	}
	return len(set.Items), nil
}

func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now()), nil
}

// Len reports the number of live entries without sweeping.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) lookupLocked(token string, callerID int64) (*domain.ResultSet, error) {
	m.sweepLocked(m.now())
	set, ok := m.entries[token]
	if !ok {
		metrics.ResultCacheOpsTotal.WithLabelValues("get", "not_found").Inc()
		return nil, domain.ErrCacheNotFound
	}
	if err := checkOwner(*set, callerID); err != nil {
		metrics.ResultCacheOpsTotal.WithLabelValues("get", "forbidden").Inc()
		return nil, err
	}
	return set, nil
}

func (m *Memory) sweepLocked(now time.Time) int {
	purged := 0
	for token, set := range m.entries {
		if now.Sub(set.CreatedAt) > m.ttl {
			delete(m.entries, token)
			purged++
		}
	}
	if purged > 0 {
		metrics.ResultCacheEntries.Set(float64(len(m.entries)))
	}
	return purged
}

// trimLocked evicts the oldest lists beyond maxEntries. The list just
// created under keep always survives, even when its timestamp ties others.
func (m *Memory) trimLocked(keep string) {
	if len(m.entries) <= m.maxEntries {
		return
	}
	sets := make([]*domain.ResultSet, 0, len(m.entries))
	for token, set := range m.entries {
		if token != keep {
			sets = append(sets, set)
		}
	}
	sort.Slice(sets, func(i, j int) bool {
		if !sets[i].CreatedAt.Equal(sets[j].CreatedAt) {
			return sets[i].CreatedAt.Before(sets[j].CreatedAt)
		}
		return sets[i].Token < sets[j].Token
	})
	excess := min(len(m.entries)-m.maxEntries, len(sets))
	for _, set := range sets[:excess] {
		delete(m.entries, set.Token)
	}
}
