package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

func newCarService(f *fixture, cache ViewCache) *CarService {
	return NewCarService(f.cars, f.bookings, cache, 30*time.Second, f.clock)
}

func TestCarService_ListCars(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	busy := f.car
	later := f.addCar(t, "Alfa Romeo Giulia")
	free := f.addCar(t, "Lancia Ypsilon")

	current := f.seed(t, busy.ID, "alice", at(7, 0), at(9, 0))
	f.seed(t, busy.ID, "bob", at(12, 0), at(13, 0))
	f.seed(t, later.ID, "carol", at(15, 0), at(16, 0))
	f.seed(t, later.ID, "carol", at(10, 0), at(11, 0))

	svc := newCarService(f, nil)
	list, err := svc.ListCars(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byID := map[string]CarAvailability{}
	for _, item := range list {
		byID[item.Car.ID] = item
	}

	assert.False(t, byID[busy.ID].Available)
	require.NotNil(t, byID[busy.ID].CurrentBooking)
	assert.Equal(t, current.ID, byID[busy.ID].CurrentBooking.ID)
	require.NotNil(t, byID[busy.ID].NextBookingAt)
	assert.Equal(t, at(12, 0), *byID[busy.ID].NextBookingAt)

	assert.True(t, byID[later.ID].Available)
	require.NotNil(t, byID[later.ID].NextBookingAt)
	assert.Equal(t, at(10, 0), *byID[later.ID].NextBookingAt)

	assert.True(t, byID[free.ID].Available)
	assert.Nil(t, byID[free.ID].NextBookingAt)
}

func TestCarService_OccupiedAndUpcoming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCarService(f, nil)

	occupying := f.seed(t, f.car.ID, "alice", at(7, 0), at(9, 0))
	second := f.seed(t, f.car.ID, "bob", at(14, 0), at(15, 0))
	first := f.seed(t, f.car.ID, "carol", at(10, 0), at(11, 0))

	occupied, err := svc.Occupied(ctx)
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, occupying.ID, occupied[0].ID)

	upcoming, err := svc.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, first.ID, upcoming[0].ID)
	assert.Equal(t, second.ID, upcoming[1].ID)

	t.Run("終了時刻を過ぎると利用中でなくなる", func(t *testing.T) {
		f.clock.Set(at(9, 0))
		occupied, err := svc.Occupied(ctx)
		require.NoError(t, err)
		assert.Empty(t, occupied)
	})
}

func TestCarService_CacheIsInvalidatedByBookingChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCarService(f, f.cache)

	upcoming, err := svc.Upcoming(ctx)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	// キャッシュを経由しない登録は反映されない
	f.seed(t, f.car.ID, "alice", at(10, 0), at(11, 0))
	upcoming, err = svc.Upcoming(ctx)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	// サービス経由の予約はキャッシュを破棄する
	created, err := f.create("bob", at(12, 0), at(13, 0))
	require.NoError(t, err)
	upcoming, err = svc.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, created.ID, upcoming[1].ID)

	_, err = f.service.Cancel(ctx, created.ID, Actor{UserID: "bob"})
	require.NoError(t, err)
	upcoming, err = svc.Upcoming(ctx)
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)
}

func TestCarService_CachedViewsExpireAtBookingBoundaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewCarService(f.cars, f.bookings, f.cache, time.Hour, f.clock)

	b := f.seed(t, f.car.ID, "alice", at(10, 0), at(11, 0))
	f.clock.Set(at(9, 59))

	list, err := svc.ListCars(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Available)
	occupied, err := svc.Occupied(ctx)
	require.NoError(t, err)
	assert.Empty(t, occupied)
	upcoming, err := svc.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	t.Run("開始時刻を過ぎると利用中として扱う", func(t *testing.T) {
		f.clock.Set(at(10, 30))

		list, err := svc.ListCars(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.False(t, list[0].Available)
		require.NotNil(t, list[0].CurrentBooking)
		assert.Equal(t, b.ID, list[0].CurrentBooking.ID)

		occupied, err := svc.Occupied(ctx)
		require.NoError(t, err)
		require.Len(t, occupied, 1)
		assert.Equal(t, b.ID, occupied[0].ID)

		upcoming, err := svc.Upcoming(ctx)
		require.NoError(t, err)
		assert.Empty(t, upcoming)
	})

	t.Run("終了時刻を過ぎると空きに戻る", func(t *testing.T) {
		f.clock.Set(at(11, 0))

		list, err := svc.ListCars(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Available)
		assert.Nil(t, list[0].CurrentBooking)

		occupied, err := svc.Occupied(ctx)
		require.NoError(t, err)
		assert.Empty(t, occupied)
	})

	t.Run("境界までは保存したビューを返す", func(t *testing.T) {
		f.clock.Set(at(11, 5))
		_, err := svc.Occupied(ctx)
		require.NoError(t, err)

		// キャッシュを経由しない登録は次の境界まで反映されない
		f.seed(t, f.car.ID, "bob", at(11, 10), at(12, 0))
		occupied, err := svc.Occupied(ctx)
		require.NoError(t, err)
		assert.Empty(t, occupied)
	})
}

func TestCarService_CreateCar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCarService(f, f.cache)

	c, err := svc.CreateCar(ctx, "  Fiat 500  ", 4)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Fiat 500", c.Name)
	assert.Equal(t, 1, f.cache.invalidations())

	got, err := svc.GetCar(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)

	_, err = svc.CreateCar(ctx, "", 4)
	assert.ErrorIs(t, err, car.ErrNameRequired)
	_, err = svc.CreateCar(ctx, "Fiat 500", 0)
	assert.ErrorIs(t, err, car.ErrInvalidSeats)
}
