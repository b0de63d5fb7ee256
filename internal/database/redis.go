// internal/database/redis.go
package database

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
)

// PresenceChannel carries the same presence snapshot the socket clients
// get, for consumers without a socket (noti-service, REST tier).
const PresenceChannel = "presence:events"

var redisClient *redis.Client

// InitRedis initializes the Redis connection. The signaling core works
// without Redis; everything here is best-effort mirroring.
func InitRedis() *redis.Client {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Println("⚠️ REDIS_URL not set, using default: redis://localhost:6379/0")
		redisURL = "redis://localhost:6379/0"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("❌ Failed to parse REDIS_URL: %v", err)
		return nil
	}

	redisClient = redis.NewClient(opt)

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Failed to connect to Redis: %v", err)
		redisClient = nil
		return nil
	}

	log.Println("✅ Redis connected successfully")
	return redisClient
}

// GetRedis returns the Redis client (nil if unavailable).
func GetRedis() *redis.Client {
	return redisClient
}

// SetUserOnline mirrors a user's online status for other services.
func SetUserOnline(userID string) error {
	if redisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	key := fmt.Sprintf("presence:%s", userID)
	return redisClient.Set(context.Background(), key, "ONLINE", 0).Err()
}

// SetUserOffline removes the mirrored status.
func SetUserOffline(userID string) error {
	if redisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	key := fmt.Sprintf("presence:%s", userID)
	return redisClient.Del(context.Background(), key).Err()
}

// PublishPresence pushes a presence snapshot to the shared channel.
func PublishPresence(payload []byte) error {
	if redisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return redisClient.Publish(context.Background(), PresenceChannel, payload).Err()
}
