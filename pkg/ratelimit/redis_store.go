package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordScript trims, checks and records in one round trip so that concurrent
// instances sharing the key cannot overshoot the limit.
//
// KEYS[1] window key; ARGV: now (µs), window (µs), limit, n, member prefix.
// Returns {allowed, count, oldest (µs)}.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + n <= limit then
	for i = 1, n do
		redis.call('ZADD', key, now, ARGV[5] .. ':' .. i)
	end
	count = count + n
	allowed = 1
end
if count > 0 then
	redis.call('PEXPIRE', key, math.ceil(window / 1000))
end

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first == 2 then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// countScript trims and counts without recording.
var countScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', tonumber(ARGV[1]) - tonumber(ARGV[2]))
local count = redis.call('ZCARD', key)
local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first == 2 then
	oldest = tonumber(first[2])
end
return {count, oldest}
`)

// RedisStore is a Store shared by every instance pointing at the same Redis.
// Each key is a sorted set of request ids scored by their timestamp.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the namespace prepended to every key.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}
	s := &RedisStore{client: client, prefix: "ratelimit:"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (bool, int64, time.Time, error) {
	res, err := recordScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMicro(), window.Microseconds(), limit, n, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("ratelimit: redis record: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("ratelimit: redis record: unexpected reply length %d", len(res))
	}
	return res[0] == 1, res[1], fromMicros(res[2]), nil
}

func (s *RedisStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	res, err := countScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMicro(), window.Microseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis count: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis count: unexpected reply length %d", len(res))
	}
	return res[0], fromMicros(res[1]), nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis delete: %w", err)
	}
	return nil
}

func fromMicros(us int64) time.Time {
	if us <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}
