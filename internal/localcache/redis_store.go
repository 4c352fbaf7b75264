package localcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

var _ Store = (*RedisStore)(nil)

const revisionKeySuffix = "||rev"

// KEYS[1] document, KEYS[2] revision counter
// ARGV[1] expected revision (-1 = any), ARGV[2] document value
var putScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
local expected = tonumber(ARGV[1])
if expected >= 0 and current ~= expected then
	return -1
end
redis.call('SET', KEYS[1], ARGV[2])
return redis.call('INCR', KEYS[2])
`)

// RedisStore persists documents in redis, so they survive process restarts.
type RedisStore struct {
	redisClient *redis.Client
	deviceID    string
}

func NewRedisStore(redisClient *redis.Client, deviceID string) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
		deviceID:    deviceID,
	}
}

func (rs *RedisStore) keys(key string) (string, string) {
	docKey := DeviceKey(rs.deviceID, key)
	return docKey, docKey + revisionKeySuffix
}

func (rs *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	docKey, revKey := rs.keys(key)
	cmd := rs.redisClient.MGet(ctx, docKey, revKey)
	if err := cmd.Err(); err != nil {
		return Entry{}, fmt.Errorf("redis mget: %w", err)
	}

	vals := cmd.Val()
	if len(vals) != 2 || vals[0] == nil {
		return Entry{}, ErrNotFound
	}

	value, ok := vals[0].(string)
	if !ok {
		return Entry{}, fmt.Errorf("unexpected value type for [%s]: %T", key, vals[0])
	}

	var revision int64
	if revStr, ok := vals[1].(string); ok {
		parsed, err := strconv.ParseInt(revStr, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("parse revision for [%s]: %w", key, err)
		}
		revision = parsed
	} else {
		// written by something that does not track revisions
		log.Warnf("local cache: document [%s] has no revision", docKey)
	}

	return Entry{
		Value:    []byte(value),
		Revision: revision,
	}, nil
}

func (rs *RedisStore) Put(ctx context.Context, key string, value []byte, expectedRevision int64) (int64, error) {
	docKey, revKey := rs.keys(key)
	revision, err := putScript.Run(
		ctx,
		rs.redisClient,
		[]string{docKey, revKey},
		expectedRevision, string(value),
	).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("redis put script returned nil for [%s]", key)
		}
		return 0, fmt.Errorf("redis put script: %w", err)
	}
	if revision < 0 {
		return 0, ErrConflict
	}
	return revision, nil
}
