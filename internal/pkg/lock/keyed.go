package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// KeyedArena はキーごとのミューテックスを必要な間だけ保持するロック置き場
// 異なるキー同士は互いをブロックしない
type KeyedArena struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedArena は空の KeyedArena を作成する
func NewKeyedArena() *KeyedArena {
	return &KeyedArena{slots: make(map[string]*slot)}
}

func (a *KeyedArena) checkout(key string) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		a.slots[key] = s
	}
	s.refs++
	return s
}

func (a *KeyedArena) checkin(key string, s *slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(a.slots, key)
	}
}

// AcquireLock は待たずにロック取得を試みる
// ttl はプロセス内ロックでは使わない
func (a *KeyedArena) AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := a.checkout(key)
	select {
	case s.ch <- struct{}{}:
		return &keyedLock{arena: a, key: key, slot: s}, nil
	default:
		a.checkin(key, s)
		return nil, ErrNotAcquired
	}
}

// AcquireLockWithRetry は maxRetries * retryDelay を上限に、解放されるまで待ってロックを取得する
func (a *KeyedArena) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error) {
	wait := time.Duration(maxRetries) * retryDelay
	timer := time.NewTimer(wait)
	defer timer.Stop()

	s := a.checkout(key)
	select {
	case s.ch <- struct{}{}:
		return &keyedLock{arena: a, key: key, slot: s}, nil
	case <-ctx.Done():
		a.checkin(key, s)
		return nil, ctx.Err()
	case <-timer.C:
		a.checkin(key, s)
		return nil, ErrNotAcquired
	}
}

// Len は現在保持されているキー数を返す
func (a *KeyedArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

type keyedLock struct {
	released atomic.Bool
	arena    *KeyedArena
	key      string
	slot     *slot
}

func (l *keyedLock) Release(ctx context.Context) error {
	if !l.released.CompareAndSwap(false, true) {
		return ErrNotOwned
	}
	<-l.slot.ch
	l.arena.checkin(l.key, l.slot)
	return nil
}

var _ Manager = (*KeyedArena)(nil)
