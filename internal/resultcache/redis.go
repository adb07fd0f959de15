package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

const (
	redisKeyPrefix     = "kinobot:results:"
	redisCreateRetries = 3
	redisWatchRetries  = 5
)

var ErrTokenCollision = errors.New("could not allocate a unique token")

// Redis is a Store shared between bot replicas. Keys carry the TTL, so
// Sweep has nothing to do.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: redisKeyPrefix, ttl: ttl, now: time.Now}
}

func (r *Redis) key(token string) string {
	return r.prefix + token
}

func (r *Redis) Create(ctx context.Context, ownerID int64, items []domain.MatchResult) (string, error) {
	set := domain.ResultSet{
		OwnerID:   ownerID,
		Items:     domain.CloneMatchResults(items),
		CreatedAt: r.now().UTC(),
	}
	for attempt := 0; attempt < redisCreateRetries; attempt++ {
		token, err := NewToken()
		if err != nil {
			return "", err
		}
		set.Token = token
		data, err := json.Marshal(set)
		if err != nil {
			return "", err
		}
		ok, err := r.client.SetNX(ctx, r.key(token), data, r.ttl).Result()
		if err != nil {
			metrics.ResultCacheOpsTotal.WithLabelValues("create", "error").Inc()
			return "", fmt.Errorf("store result set: %w", err)
		}
		if ok {
			metrics.ResultCacheOpsTotal.WithLabelValues("create", "ok").Inc()
			return token, nil
		}
	}
	return "", ErrTokenCollision
}

func (r *Redis) Get(ctx context.Context, token string, callerID int64) (domain.ResultSet, error) {
	set, err := r.load(ctx, r.client, token)
	if err != nil {
		return domain.ResultSet{}, err
	}
	if err := checkOwner(set, callerID); err != nil {
		metrics.ResultCacheOpsTotal.WithLabelValues("get", "forbidden").Inc()
		return domain.ResultSet{}, err
	}
	return set, nil
}

func (r *Redis) GetPage(ctx context.Context, token string, callerID int64, page, pageSize int) (domain.Page, error) {
	set, err := r.Get(ctx, token, callerID)
	if err != nil {
		return domain.Page{}, err
	}
	result, err := Paginate(set, page, pageSize)
	if err != nil {
		metrics.ResultCacheOpsTotal.WithLabelValues("page", "out_of_range").Inc()
		return domain.Page{}, err
	}
	metrics.ResultCacheOpsTotal.WithLabelValues("page", "ok").Inc()
	return result, nil
}

// RemoveItem rewrites the list under WATCH so concurrent removals of the
// same token cannot lose each other's update.
func (r *Redis) RemoveItem(ctx context.Context, token string, loc domain.Locator) (int, error) {
	key := r.key(token)
	remaining := 0
	txf := func(tx *redis.Tx) error {
		set, err := r.load(ctx, tx, token)
		if err != nil {
			return err
		}
		items, removed := removeLocator(set.Items, loc)
		remaining = len(items)
		if !removed {
			return nil
		}
		set.Items = items
		data, err := json.Marshal(set)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			metrics.ResultCacheOpsTotal.WithLabelValues("remove", "ok").Inc()
			return remaining, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if !errors.Is(err, domain.ErrCacheNotFound) {
			metrics.ResultCacheOpsTotal.WithLabelValues("remove", "error").Inc()
		}
		return 0, err
	}
	metrics.ResultCacheOpsTotal.WithLabelValues("remove", "conflict").Inc()
	return 0, fmt.Errorf("remove item from %s: %w", token, redis.TxFailedErr)
}

func (r *Redis) Sweep(context.Context) (int, error) {
	return 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) load(ctx context.Context, cmd stringGetter, token string) (domain.ResultSet, error) {
	data, err := cmd.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.ResultCacheOpsTotal.WithLabelValues("get", "not_found").Inc()
			return domain.ResultSet{}, domain.ErrCacheNotFound
		}
		return domain.ResultSet{}, fmt.Errorf("load result set: %w", err)
	}
	var set domain.ResultSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.ResultSet{}, fmt.Errorf("decode result set: %w", err)
	}
	if r.now().Sub(set.CreatedAt) > r.ttl {
		return domain.ResultSet{}, domain.ErrCacheNotFound
	}
	return set, nil
}
