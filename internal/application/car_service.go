package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

// CarAvailability は現在時刻における車両の空き状況
type CarAvailability struct {
	Car            *car.Car         `json:"car"`
	Available      bool             `json:"available"`
	CurrentBooking *booking.Booking `json:"current_booking,omitempty"`
	NextBookingAt  *time.Time       `json:"next_booking_at,omitempty"`
}

// CarService は車両と、その利用状況のビューを扱う
type CarService struct {
	cars     car.Repository
	bookings booking.Repository
	cache    ViewCache
	cacheTTL time.Duration
	clock    clock.Clock
}

// NewCarService は CarService を生成する
// cache が nil の場合は常にリポジトリから読み込む
func NewCarService(cars car.Repository, bookings booking.Repository, cache ViewCache, cacheTTL time.Duration, clk clock.Clock) *CarService {
	return &CarService{
		cars:     cars,
		bookings: bookings,
		cache:    cache,
		cacheTTL: cacheTTL,
		clock:    clk,
	}
}

// CreateCar は車両を登録する
func (s *CarService) CreateCar(ctx context.Context, name string, seats int) (*car.Car, error) {
	c := car.NewCar(name, seats, s.clock.Now())
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.cars.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("車両の登録に失敗: %w", err)
	}
	logger.Info("車両を登録しました", zap.String("car_id", c.ID), zap.String("name", c.Name))
	invalidateViews(ctx, s.cache)
	return c, nil
}

// GetCar は車両を取得する
func (s *CarService) GetCar(ctx context.Context, id string) (*car.Car, error) {
	return s.cars.GetByID(ctx, id)
}

// ListCars は全車両と現在の空き状況、次の予約開始時刻を返す
func (s *CarService) ListCars(ctx context.Context) ([]CarAvailability, error) {
	now := s.clock.Now()
	if cached, ok := readView[[]CarAvailability](ctx, s, viewKeyCars, now); ok {
		return cached, nil
	}

	cars, err := s.cars.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("車両一覧の取得に失敗: %w", err)
	}
	occupied, upcoming, err := s.usage(ctx, now)
	if err != nil {
		return nil, err
	}

	current := make(map[string]*booking.Booking, len(occupied))
	for _, b := range occupied {
		current[b.CarID] = b
	}
	next := make(map[string]time.Time, len(upcoming))
	for _, b := range upcoming {
		if t, ok := next[b.CarID]; !ok || b.StartTime.Before(t) {
			next[b.CarID] = b.StartTime
		}
	}

	result := make([]CarAvailability, 0, len(cars))
	for _, c := range cars {
		item := CarAvailability{Car: c, Available: true}
		if b, ok := current[c.ID]; ok {
			item.Available = false
			item.CurrentBooking = b
		}
		if t, ok := next[c.ID]; ok {
			t := t
			item.NextBookingAt = &t
		}
		result = append(result, item)
	}

	s.writeView(ctx, viewKeyCars, result, now, nextBoundary(occupied, upcoming))
	return result, nil
}

// Occupied は現在利用中の有効な予約を返す
func (s *CarService) Occupied(ctx context.Context) ([]*booking.Booking, error) {
	now := s.clock.Now()
	if cached, ok := readView[[]*booking.Booking](ctx, s, viewKeyOccupied, now); ok {
		return cached, nil
	}
	occupied, upcoming, err := s.usage(ctx, now)
	if err != nil {
		return nil, err
	}
	// 利用中の予約の終了と、次の予約の開始で内容が変わる
	s.writeView(ctx, viewKeyOccupied, occupied, now, nextBoundary(occupied, upcoming))
	return occupied, nil
}

// Upcoming は開始前の有効な予約を開始時刻順に返す
func (s *CarService) Upcoming(ctx context.Context) ([]*booking.Booking, error) {
	now := s.clock.Now()
	if cached, ok := readView[[]*booking.Booking](ctx, s, viewKeyUpcoming, now); ok {
		return cached, nil
	}
	found, err := s.bookings.FindUpcoming(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("今後の予約の取得に失敗: %w", err)
	}
	sortByStart(found)
	s.writeView(ctx, viewKeyUpcoming, found, now, nextBoundary(nil, found))
	return found, nil
}

// usage は now 時点で利用中の予約と開始前の予約を返す
func (s *CarService) usage(ctx context.Context, now time.Time) (occupied, upcoming []*booking.Booking, err error) {
	occupied, err = s.bookings.FindOccupiedAt(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("利用中の予約の取得に失敗: %w", err)
	}
	upcoming, err = s.bookings.FindUpcoming(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("今後の予約の取得に失敗: %w", err)
	}
	sortByStart(occupied)
	sortByStart(upcoming)
	return occupied, upcoming, nil
}

func sortByStart(bs []*booking.Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		return bs[i].StartTime.Before(bs[j].StartTime)
	})
}

// nextBoundary は空き状況が次に変わる時刻を返す
// 利用中の予約の終了か、開始前の予約の開始のうち最も早いもの。なければゼロ値
func nextBoundary(occupied, upcoming []*booking.Booking) time.Time {
	var boundary time.Time
	earlier := func(t time.Time) {
		if boundary.IsZero() || t.Before(boundary) {
			boundary = t
		}
	}
	for _, b := range occupied {
		earlier(b.EndTime)
	}
	for _, b := range upcoming {
		earlier(b.StartTime)
	}
	return boundary
}

// cachedView はキャッシュに保存するビュー
// ValidUntil 以降の時刻では内容が古くなっているため使わない
type cachedView[T any] struct {
	ValidUntil time.Time `json:"valid_until"`
	Items      T         `json:"items"`
}

func readView[T any](ctx context.Context, s *CarService, key string, now time.Time) (T, bool) {
	var view cachedView[T]
	if s.cache == nil {
		return view.Items, false
	}
	if err := s.cache.Get(ctx, key, &view); err != nil {
		return view.Items, false
	}
	if !now.Before(view.ValidUntil) {
		var zero T
		return zero, false
	}
	return view.Items, true
}

// writeView は TTL と次の境界時刻のうち早い方まで有効なビューを保存する
func (s *CarService) writeView(ctx context.Context, key string, items any, now, boundary time.Time) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	validUntil := now.Add(s.cacheTTL)
	if !boundary.IsZero() && boundary.Before(validUntil) {
		validUntil = boundary
	}
	ttl := validUntil.Sub(now)
	if ttl <= 0 {
		return
	}
	view := cachedView[any]{ValidUntil: validUntil, Items: items}
	if err := s.cache.Set(ctx, key, view, ttl); err != nil {
		logger.Debug("ビューキャッシュの保存に失敗しました", zap.String("key", key), zap.Error(err))
	}
}
