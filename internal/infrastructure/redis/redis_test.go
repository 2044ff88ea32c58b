package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-car-booking/internal/config"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client, err := NewClient(&config.RedisConfig{Host: "localhost", Port: "6379"})
	if err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// testKey はテスト間で衝突しないキーを返す
func testKey(name string) string {
	return "test:" + name + ":" + uuid.NewString()
}
