package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

const viewKeyPrefix = "car-booking:"

// ViewCache は車両一覧や利用状況のビューを JSON でキャッシュする
type ViewCache struct {
	client *redis.Client
}

// NewViewCache は新しいViewCacheインスタンスを作成する
func NewViewCache(client *redis.Client) *ViewCache {
	return &ViewCache{client: client}
}

// Get はキャッシュから値を取得して dest に復元する
func (c *ViewCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, viewKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return nil
}

// Set は値を JSON にしてキャッシュに保存する
func (c *ViewCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("キャッシュの変換に失敗: %w", err)
	}
	if err := c.client.Set(ctx, viewKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は指定したキーのキャッシュを無効化する
func (c *ViewCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = viewKeyPrefix + k
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}
