// Package memory はプロセス内で完結する予約台帳
// 開発環境とテストで PostgreSQL の代わりに使用する
package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

var errTxRequired = errors.New("メモリストアのトランザクションが必要です")

// Store は車両と予約を保持する
type Store struct {
	mu       sync.RWMutex
	cars     map[string]*car.Car
	bookings map[string]*booking.Booking
	order    []string
}

// NewStore は空の Store を作成する
func NewStore() *Store {
	return &Store{
		cars:     make(map[string]*car.Car),
		bookings: make(map[string]*booking.Booking),
	}
}

// BookingCount は保持している予約数を返す
func (s *Store) BookingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}

// activeOverlapLocked は車両の有効な予約のうち w と重なるものがあるかを返す
// 呼び出し側で mu を保持していること
func (s *Store) activeOverlapLocked(carID string, w booking.TimeWindow) bool {
	for _, b := range s.bookings {
		if b.CarID == carID && b.Active && b.Window().Overlaps(w) {
			return true
		}
	}
	return false
}

// selectBookings は条件に合う予約のコピーを登録順で返す
func (s *Store) selectBookings(match func(b *booking.Booking) bool) []*booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*booking.Booking, 0)
	for _, id := range s.order {
		b := s.bookings[id]
		if match(b) {
			result = append(result, cloneBooking(b))
		}
	}
	return result
}

func sortByStart(bookings []*booking.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].StartTime.Before(bookings[j].StartTime)
	})
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	if b.DeactivatedAt != nil {
		t := *b.DeactivatedAt
		c.DeactivatedAt = &t
	}
	c.RecomputeDuration()
	return &c
}

func cloneCar(c *car.Car) *car.Car {
	cp := *c
	return &cp
}
