package booking

import (
	"math"
	"time"
)

// TimeWindow は [Start, End) の半開区間を表す
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow は検証済みの TimeWindow を作成する
// どちらかが未指定、または End <= Start の場合は ErrInvalidWindow を返す
func NewTimeWindow(start, end *time.Time) (TimeWindow, error) {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return TimeWindow{}, ErrInvalidWindow
	}
	w := TimeWindow{Start: *start, End: *end}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate は区間の整合性を検証する
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.End.After(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// Overlaps は半開区間として重なりがあるかを返す
// 境界が接しているだけ（一方の End == 他方の Start）の場合は重ならない
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Contains は t が区間内にあるかを返す
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DurationHours は分単位の長さを60で割って切り上げた時間数を返す
func (w TimeWindow) DurationHours() int {
	minutes := int64(w.End.Sub(w.Start) / time.Minute)
	if minutes <= 0 {
		return 0
	}
	return int(math.Ceil(float64(minutes) / 60.0))
}
