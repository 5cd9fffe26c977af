package localstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultRedisTimeout = 2 * time.Second

// RedisOptions configures a Redis store.
type RedisOptions struct {
	// Prefix is prepended to every key, so several apps can share a database.
	Prefix string
	// TTL expires snapshots after inactivity. Zero keeps them forever.
	TTL time.Duration
	// Timeout bounds each command. Defaults to 2s.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Redis is a Store backed by a Redis server.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewRedisClient initializes a redis client.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, opts RedisOptions) *Redis {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRedisTimeout
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return &Redis{
		rdb:     rdb,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		log:     opts.Logger.WithField("store", "redis"),
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	text, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.log.WithError(err).WithField("key", key).Error("snapshot read failed")
		return "", false
	}
	return text, true
}

func (r *Redis) Set(key, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.rdb.Set(ctx, r.prefix+key, text, r.ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Error("snapshot write failed")
	}
}

func (r *Redis) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Error("snapshot remove failed")
	}
}
