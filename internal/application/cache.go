package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

// ViewCache は車両一覧などの読み取りビューのキャッシュ
// Get はキャッシュミスを含め、値を返せない場合にエラーを返す
type ViewCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

const (
	viewKeyCars     = "views:cars"
	viewKeyOccupied = "views:occupied"
	viewKeyUpcoming = "views:upcoming"
)

var allViewKeys = []string{viewKeyCars, viewKeyOccupied, viewKeyUpcoming}

// invalidateViews は予約の変更後にビューキャッシュを破棄する
// 失敗しても TTL で自然に失効するため、ログのみ出力する
func invalidateViews(ctx context.Context, cache ViewCache) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, allViewKeys...); err != nil {
		logger.Warn("ビューキャッシュの無効化に失敗しました", zap.Error(err))
	}
}
