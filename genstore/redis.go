package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares per-path generations across processes and survives restarts,
// so a removal in one process invalidates in-flight downloads and records of
// every process using the same cache root.
// An optional TTL bounds key growth; an expired key reads as generation 0.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ Store = (*Redis)(nil)

// RedisConfig configures a Redis generation store.
type RedisConfig struct {
	Client      redis.UniversalClient
	Namespace   string        // key prefix, e.g. the cache root
	TTL         time.Duration // 0 disables expiry
	CloseClient bool          // set true only if the store exclusively owns the client
}

func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}
}

func (s *Redis) key(path string) string { return "gen:" + s.ns + ":" + path }

func (s *Redis) Snapshot(ctx context.Context, path string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(path)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

func (s *Redis) SnapshotMany(ctx context.Context, paths []string) (map[string]uint64, error) {
	if len(paths) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.key(p)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(paths))
	for i, v := range vals {
		if v == nil {
			out[paths[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", paths[i], err)
		}
		out[paths[i]] = u
	}
	return out, nil
}

// Bump increments the generation. With a TTL, INCR and EXPIRE share one
// pipelined round-trip.
func (s *Redis) Bump(ctx context.Context, path string) (uint64, error) {
	k := s.key(path)
	if s.ttl <= 0 {
		return s.rdb.Incr(ctx, k).Uint64()
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op: Redis expires keys itself when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && err != redis.ErrClosed {
		return err
	}
	return nil
}
