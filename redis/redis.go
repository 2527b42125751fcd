package redis

import (
	"context"
	"encoding/json"
	"event-scheduler/internal/config"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var Ctx = context.Background()
var RedisClient *redis.Client

func InitRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: config.AppConfig.RedisAddress,
	})
	_, err := RedisClient.Ping(Ctx).Result()
	if err != nil {
		log.Println("Redis not available. Running without Redis.")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully.")
}

// StoreToken registers an issued session token with a TTL.
func StoreToken(ctx context.Context, token string, ttl time.Duration) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Set(ctx, "session:"+token, 1, ttl).Err()
}

// TokenExists reports whether a session token is still active. Without
// redis every verified token is accepted.
func TokenExists(ctx context.Context, token string) (bool, error) {
	if RedisClient == nil {
		return true, nil
	}
	n, err := RedisClient.Exists(ctx, "session:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteToken revokes a session token on logout.
func DeleteToken(ctx context.Context, token string) error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Del(ctx, "session:"+token).Err()
}

// Cache is a small JSON cache with version keys. Bumping a version key
// invalidates every cache entry derived from it without deleting anything.
// All methods degrade to no-ops when redis is unavailable.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *Cache) GetVersion(ctx context.Context, key string) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) IncrementVersion(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		log.Printf("Failed to bump cache version %s: %v", key, err)
	}
}
