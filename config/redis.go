package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisDialTimeout = 2 * time.Second

var (
	redisClient *redis.Client
	redisOnce   sync.Once
	redisMu     sync.RWMutex
)

// ConnectRedis dials the shared Redis client once. Sessions, the rate limiter
// and the analytics cache all degrade to their in-process fallbacks when it
// returns nil, so a failed ping is reported but never fatal.
func ConnectRedis() (*redis.Client, error) {
	var err error
	redisOnce.Do(func() {
		cfg := LoadConfig()
		if cfg == nil || !cfg.RedisEnabled || cfg.AppEnv == "test" {
			return
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			DialTimeout:  redisDialTimeout,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		defer cancel()
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			err = fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
			return
		}

		setRedisClient(rdb)
		logrus.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "db": cfg.RedisDB}).Info("Connected to Redis")
	})
	return GetRedisClient(), err
}

// GetRedisClient returns the shared client, or nil when Redis is disabled or unreachable.
func GetRedisClient() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisClient
}

func setRedisClient(rdb *redis.Client) {
	redisMu.Lock()
	redisClient = rdb
	redisMu.Unlock()
}

// CloseRedis releases the shared client's connection pool.
func CloseRedis() {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisClient != nil {
		_ = redisClient.Close()
		redisClient = nil
	}
}

// SetRedisClientForTest installs a client (usually a redismock one) as the shared client.
func SetRedisClientForTest(client *redis.Client) {
	setRedisClient(client)
}

// ResetRedisClientForTest forgets the shared client and lets ConnectRedis dial again.
func ResetRedisClientForTest() {
	setRedisClient(nil)
	redisOnce = sync.Once{}
}
