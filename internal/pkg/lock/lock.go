// Package lock はリソース単位の排他ロックのインターフェースと、
// 単一プロセス向けのキー付きロック実装を提供する
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotAcquired = errors.New("ロックを取得できませんでした")
	ErrNotOwned    = errors.New("ロックの所有者ではありません")
)

// Lock は取得済みのロック
// 期限の延長は行わないため、ttl は保持する処理の上限時間より長く取る
type Lock interface {
	Release(ctx context.Context) error
}

// Manager はキーごとのロックを払い出す
type Manager interface {
	// AcquireLock は待たずにロック取得を試みる。取得できなければ ErrNotAcquired
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	// AcquireLockWithRetry は最大 maxRetries 回までリトライしてロックを取得する
	AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error)
}
