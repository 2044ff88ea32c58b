package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedArena_AcquireLock(t *testing.T) {
	ctx := context.Background()
	arena := NewKeyedArena()

	t.Run("ロックを取得できる", func(t *testing.T) {
		l, err := arena.AcquireLock(ctx, "car:1", time.Second)
		require.NoError(t, err)
		require.NoError(t, l.Release(ctx))
	})

	t.Run("同じキーのロックは取得できない", func(t *testing.T) {
		l1, err := arena.AcquireLock(ctx, "car:2", time.Second)
		require.NoError(t, err)
		defer l1.Release(ctx)

		l2, err := arena.AcquireLock(ctx, "car:2", time.Second)
		assert.ErrorIs(t, err, ErrNotAcquired)
		assert.Nil(t, l2)
	})

	t.Run("異なるキーは互いをブロックしない", func(t *testing.T) {
		l1, err := arena.AcquireLock(ctx, "car:3", time.Second)
		require.NoError(t, err)
		defer l1.Release(ctx)

		l2, err := arena.AcquireLock(ctx, "car:4", time.Second)
		require.NoError(t, err)
		require.NoError(t, l2.Release(ctx))
	})

	t.Run("二重解放はErrNotOwned", func(t *testing.T) {
		l, err := arena.AcquireLock(ctx, "car:5", time.Second)
		require.NoError(t, err)
		require.NoError(t, l.Release(ctx))
		assert.ErrorIs(t, l.Release(ctx), ErrNotOwned)
	})
}

func TestKeyedArena_AcquireLockWithRetry(t *testing.T) {
	ctx := context.Background()
	arena := NewKeyedArena()

	t.Run("解放を待って取得できる", func(t *testing.T) {
		l1, err := arena.AcquireLock(ctx, "car:1", time.Second)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			l1.Release(ctx)
		}()

		l2, err := arena.AcquireLockWithRetry(ctx, "car:1", time.Second, 20, 50*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, l2.Release(ctx))
	})

	t.Run("上限時間を超えるとErrNotAcquired", func(t *testing.T) {
		l1, err := arena.AcquireLock(ctx, "car:2", time.Second)
		require.NoError(t, err)
		defer l1.Release(ctx)

		_, err = arena.AcquireLockWithRetry(ctx, "car:2", time.Second, 2, 10*time.Millisecond)
		assert.ErrorIs(t, err, ErrNotAcquired)
	})

	t.Run("コンテキストのキャンセルで中断する", func(t *testing.T) {
		l1, err := arena.AcquireLock(ctx, "car:3", time.Second)
		require.NoError(t, err)
		defer l1.Release(ctx)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = arena.AcquireLockWithRetry(cctx, "car:3", time.Second, 100, 100*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestKeyedArena_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	arena := NewKeyedArena()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := arena.AcquireLockWithRetry(ctx, "car:hot", time.Second, 100, 50*time.Millisecond)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			l.Release(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, arena.Len(), "解放後はキーが残らない")
}
