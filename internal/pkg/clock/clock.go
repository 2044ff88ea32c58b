package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock は現在時刻を提供する
// 重なり判定の一貫性のため、プロセス全体で単一のタイムゾーンに固定する
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Zoned はシステム時計を指定タイムゾーンで返す Clock
type Zoned struct {
	loc *time.Location
}

// NewZoned はタイムゾーン名から Zoned を作成する
func NewZoned(name string) (*Zoned, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("タイムゾーンの読み込みに失敗: %w", err)
	}
	return &Zoned{loc: loc}, nil
}

func (c *Zoned) Now() time.Time { return time.Now().In(c.loc) }

func (c *Zoned) Location() *time.Location { return c.loc }

// Fixed はテスト用の手動で進める Clock
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed は t を現在時刻とする Fixed を作成する
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (c *Fixed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fixed) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Location()
}

// Set は現在時刻を変更する
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance は現在時刻を d だけ進める
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
