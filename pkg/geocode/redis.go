package geocode

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultRedisKey is the hash holding all cache entries.
const DefaultRedisKey = "bookmap:geocode"

// RedisStore keeps the cache in one Redis hash. Field values use the same
// JSON form as the cache file: {"lat":..,"lon":..} or null.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps client. An empty hashKey uses DefaultRedisKey.
func NewRedisStore(client *redis.Client, hashKey string) *RedisStore {
	if hashKey == "" {
		hashKey = DefaultRedisKey
	}
	return &RedisStore{client: client, key: hashKey}
}

// OpenRedisStore connects to addr and pings it.
func OpenRedisStore(ctx context.Context, addr, hashKey string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", addr)
	}
	return NewRedisStore(client, hashKey), nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	val, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "redis: get cache entry")
	}
	e, err := decodeEntry(val)
	if err != nil {
		zap.L().Warn("redis: undecodable cache entry, treating as miss", zap.String("key", key), zap.Error(err))
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	return eris.Wrap(s.client.HSet(ctx, s.key, key, encodeEntry(e)).Err(), "redis: put cache entry")
}

// PutMany implements BulkPutter with a single HSET.
func (s *RedisStore) PutMany(ctx context.Context, entries map[string]Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(entries))
	for k, e := range entries {
		values[k] = encodeEntry(e)
	}
	return eris.Wrap(s.client.HSet(ctx, s.key, values).Err(), "redis: put cache entries")
}

// Entries implements Lister. Undecodable fields are skipped.
func (s *RedisStore) Entries(ctx context.Context) (map[string]Entry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list cache entries")
	}
	out := make(map[string]Entry, len(all))
	for k, v := range all {
		if e, err := decodeEntry(v); err == nil {
			out[k] = e
		}
	}
	return out, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, eris.Wrap(err, "redis: count cache entries")
	}
	return int(n), nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	return eris.Wrap(s.client.Del(ctx, s.key).Err(), "redis: clear cache")
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeEntry(e Entry) string {
	if !e.Found {
		return "null"
	}
	b, _ := json.Marshal(point{Lat: e.Lat, Lon: e.Lon})
	return string(b)
}

func decodeEntry(v string) (Entry, error) {
	var p *point
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return Entry{}, eris.Wrap(err, "redis: decode cache entry")
	}
	if p == nil {
		return Negative, nil
	}
	return Entry{Found: true, Lat: p.Lat, Lon: p.Lon}, nil
}
