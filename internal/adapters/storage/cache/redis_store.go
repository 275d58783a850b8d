package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	domain "courtadmin/internal/domain/cache"
)

// saveScript writes the hash only when no newer request has stored the key.
var saveScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'requested_at')
if current and tonumber(current) > tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'saved_at', ARGV[2], 'requested_at', ARGV[3])
return 1
`)

// RedisStore implements Store on Redis hashes under KeyPrefix.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a response cache backed by Redis.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Save overwrites key with data stamped now, unless a newer request already wrote it.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte, requestedAt time.Time) {
	e := domain.Entry{Key: key, Payload: data, Timestamp: s.now(), RequestedAt: requestedAt}
	if err := e.Validate(); err != nil {
		slog.Warn("cache_save_rejected", "key", key, "error", err)
		return
	}

	written, err := saveScript.Run(ctx, s.client, []string{KeyPrefix + key},
		e.Payload, e.Timestamp.UnixNano(), e.RequestedAt.UnixNano()).Int()
	if err != nil {
		slog.Error("cache_save_failed", "key", key, "backend", "redis", "error", err)
		return
	}
	if written == 0 {
		slog.Info("cache_save_superseded", "key", key, "requested_at", requestedAt)
	}
}

// Load returns the entry for key iff it is younger than maxAge.
func (s *RedisStore) Load(ctx context.Context, key string, maxAge time.Duration) (domain.Entry, bool) {
	fields, err := s.client.HGetAll(ctx, KeyPrefix+key).Result()
	if err != nil {
		slog.Error("cache_load_failed", "key", key, "backend", "redis", "error", err)
		return domain.Entry{}, false
	}
	if len(fields) == 0 {
		return domain.Entry{}, false
	}

	savedAt, err1 := strconv.ParseInt(fields["saved_at"], 10, 64)
	requestedAt, err2 := strconv.ParseInt(fields["requested_at"], 10, 64)
	if err1 != nil || err2 != nil {
		slog.Warn("cache_entry_corrupt", "key", key, "backend", "redis")
		return domain.Entry{}, false
	}
	e := domain.Entry{
		Key:         key,
		Payload:     []byte(fields["payload"]),
		Timestamp:   time.Unix(0, savedAt),
		RequestedAt: time.Unix(0, requestedAt),
	}
	if !e.Usable(s.now(), maxAge) {
		return domain.Entry{}, false
	}
	return e, true
}
