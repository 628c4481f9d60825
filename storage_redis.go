package zedb

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	redisScanCount    = 512
	redisWatchRetries = 3
)

// RedisStore talks to a Redis (or Redis-compatible) server via go-redis.
type RedisStore struct {
	redisOps
	client redis.UniversalClient
}

var (
	_ Store      = (*RedisStore)(nil)
	_ Transactor = (*RedisStore)(nil)
)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redisOps{client}, client}
}

// DialRedis parses a redis:// URL and returns a store for it.
func DialRedis(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(redis.NewClient(opt)), nil
}

func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Atomic runs fn under WATCH on watchKeys. Reads inside fn are executed
// immediately; writes are queued and sent as one MULTI/EXEC block when fn
// returns. A concurrent modification of a watched key restarts the section,
// up to a few times. Incr cannot be used inside fn and returns ErrNotAtomic.
func (s *RedisStore) Atomic(ctx context.Context, watchKeys []string, fn func(ctx context.Context, s Store) error) error {
	var err error
	for range redisWatchRetries {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			v := &redisTxView{redisOps: redisOps{tx}}
			if err := fn(ctx, v); err != nil {
				return err
			}
			if len(v.queued) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, q := range v.queued {
					q(pipe)
				}
				return nil
			})
			return err
		}, watchKeys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

type redisOps struct {
	c redis.Cmdable
}

func (r redisOps) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r redisOps) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

func (r redisOps) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	return n > 0, err
}

func (r redisOps) Incr(ctx context.Context, key string) (int64, error) {
	return r.c.Incr(ctx, key).Result()
}

func (r redisOps) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.c.HSet(ctx, key, hashArgs(fields)...).Err()
}

func (r redisOps) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.c.HDel(ctx, key, fields...).Err()
}

func (r redisOps) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

func (r redisOps) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.c.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (r redisOps) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.c.ZRem(ctx, key, anySlice(members)...).Err()
}

func (r redisOps) ZRange(ctx context.Context, key string, start, stop int64, reverse bool) ([]string, error) {
	if reverse {
		return r.c.ZRevRange(ctx, key, start, stop).Result()
	}
	return r.c.ZRange(ctx, key, start, stop).Result()
}

func (r redisOps) ZRangeByLex(ctx context.Context, key string, rang LexRange) ([]string, error) {
	min, max := rang.RedisArgs()
	return r.c.ZRangeByLex(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
}

func (r redisOps) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.c.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// redisTxView is the Store handed to an Atomic callback.
type redisTxView struct {
	redisOps
	queued []func(pipe redis.Pipeliner)
}

func (v *redisTxView) queue(ctx context.Context, f func(pipe redis.Pipeliner)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.queued = append(v.queued, f)
	return nil
}

func (v *redisTxView) Incr(ctx context.Context, key string) (int64, error) {
	return 0, ErrNotAtomic
}

func (v *redisTxView) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return v.queue(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, keys...)
	})
}

func (v *redisTxView) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := hashArgs(fields)
	return v.queue(ctx, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, args...)
	})
}

func (v *redisTxView) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return v.queue(ctx, func(pipe redis.Pipeliner) {
		pipe.HDel(ctx, key, fields...)
	})
}

func (v *redisTxView) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return v.queue(ctx, func(pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	})
}

func (v *redisTxView) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := anySlice(members)
	return v.queue(ctx, func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, key, args...)
	})
}

func hashArgs(fields map[string]string) []any {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func anySlice(ss []string) []any {
	result := make([]any, len(ss))
	for i, s := range ss {
		result[i] = s
	}
	return result
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
