package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisOps is the rueidis-backed primitive set the four cache tiers are
// built from: string get/setex, hash set/getall, list append/range/trim,
// set-if-not-exists-with-expiry, and delete. Declared as an interface
// (rather than exposing *RedisClient directly) so tests substitute an
// in-memory fake instead of a live Redis connection.
type RedisOps interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrimToTail(ctx context.Context, key string, keepLast int64) error
	ReplaceList(ctx context.Context, key string, values []string) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RedisClient implements RedisOps over github.com/redis/rueidis, extending
// the teacher's pkg/redis.Client pattern with the list and NX-lock
// primitives spec.md 4.L's session history and distributed lock tiers
// need and the original pkg/redis.Client never grew.
type RedisClient struct {
	client rueidis.Client
}

var _ RedisOps = (*RedisClient)(nil)

// Options mirrors the teacher's pkg/redis.ClientOptions.
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient builds a RedisClient.
func NewRedisClient(opts Options) (*RedisClient, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", opts.Host, opts.Port)},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: new redis client: %w", err)
	}
	return &RedisClient{client: client}, nil
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() { c.client.Close() }

func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := c.client.B().Get().Key(key).Build()
	res := c.client.Do(ctx, cmd)
	if res.Error() != nil {
		if rueidis.IsRedisNil(res.Error()) {
			return "", false, nil
		}
		return "", false, res.Error()
	}
	val, err := res.ToString()
	return val, true, err
}

func (c *RedisClient) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := c.client.B().Set().Key(key).Value(value).ExSeconds(int64(ttl.Seconds())).Build()
	return c.client.Do(ctx, cmd).Error()
}

func (c *RedisClient) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	fv := c.client.B().Hset().Key(key).FieldValue()
	for field, value := range fields {
		fv = fv.FieldValue(field, value)
	}
	return c.client.Do(ctx, fv.Build()).Error()
}

func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := c.client.B().Hgetall().Key(key).Build()
	res := c.client.Do(ctx, cmd)
	if res.Error() != nil {
		return nil, res.Error()
	}
	return res.AsStrMap()
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	cmd := c.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()
	return c.client.Do(ctx, cmd).Error()
}

func (c *RedisClient) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	cmd := c.client.B().Rpush().Key(key).Element(values...).Build()
	return c.client.Do(ctx, cmd).Error()
}

func (c *RedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	cmd := c.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()
	res := c.client.Do(ctx, cmd)
	if res.Error() != nil {
		return nil, res.Error()
	}
	return res.AsStrSlice()
}

func (c *RedisClient) LTrimToTail(ctx context.Context, key string, keepLast int64) error {
	cmd := c.client.B().Ltrim().Key(key).Start(-keepLast).Stop(-1).Build()
	return c.client.Do(ctx, cmd).Error()
}

// ReplaceList atomically replaces the whole list under key: delete then
// rpush, pipelined so readers never observe a partial list.
func (c *RedisClient) ReplaceList(ctx context.Context, key string, values []string) error {
	cmds := make(rueidis.Commands, 0, 2)
	cmds = append(cmds, c.client.B().Del().Key(key).Build())
	if len(values) > 0 {
		cmds = append(cmds, c.client.B().Rpush().Key(key).Element(values...).Build())
	}
	for _, res := range c.client.DoMulti(ctx, cmds...) {
		if res.Error() != nil {
			return res.Error()
		}
	}
	return nil
}

// SetNX implements the distributed lock primitive: SET key value EX
// ttl NX. Returns false (no error) when the key already exists.
func (c *RedisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().Key(key).Value(value).ExSeconds(int64(ttl.Seconds())).Nx().Build()
	res := c.client.Do(ctx, cmd)
	if res.Error() != nil {
		if rueidis.IsRedisNil(res.Error()) {
			return false, nil
		}
		return false, res.Error()
	}
	return true, nil
}

// KeysWithPrefix lists every key starting with prefix. Uses KEYS rather
// than cursor-based SCAN: the semantic cache and summarization trigger are
// the only callers, both bounded by the same 24h TTL eviction that keeps
// this key space small, so KEYS's O(n) full-keyspace-adjacent scan is an
// acceptable simplification of the production SCAN-loop pattern.
func (c *RedisClient) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	cmd := c.client.B().Keys().Pattern(prefix + "*").Build()
	res := c.client.Do(ctx, cmd)
	if res.Error() != nil {
		return nil, res.Error()
	}
	return res.AsStrSlice()
}

func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := c.client.B().Del().Key(keys...).Build()
	return c.client.Do(ctx, cmd).Error()
}
