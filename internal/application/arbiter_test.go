package application

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

func candidate(carID, userID string, start, end time.Time) *booking.Booking {
	return booking.NewBooking(carID, userID, booking.TimeWindow{Start: start, End: end}, "出張", testNow)
}

func TestArbiter_TryReserve(t *testing.T) {
	tests := []struct {
		name    string
		carID   string
		start   time.Time
		end     time.Time
		wantErr error
	}{
		{"後半が重なる", "", at(11, 0), at(13, 0), booking.ErrConflict},
		{"前半が重なる", "", at(9, 0), at(11, 0), booking.ErrConflict},
		{"既存を包含する", "", at(8, 30), at(16, 0), booking.ErrConflict},
		{"既存に包含される", "", at(10, 30), at(11, 30), booking.ErrConflict},
		{"同一期間", "", at(10, 0), at(12, 0), booking.ErrConflict},
		{"終了直後に開始する", "", at(12, 0), at(13, 0), nil},
		{"開始直前に終了する", "", at(9, 0), at(10, 0), nil},
		{"終了が開始より前", "", at(14, 0), at(13, 0), booking.ErrInvalidWindow},
		{"開始と終了が同じ", "", at(14, 0), at(14, 0), booking.ErrInvalidWindow},
		{"許容範囲を超えた過去", "", at(7, 54), at(9, 0), booking.ErrPastStart},
		{"許容範囲内の過去", "", at(7, 56), at(9, 0), nil},
		{"存在しない車両", "missing", at(14, 0), at(15, 0), booking.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			existing := f.seed(t, f.car.ID, "alice", at(10, 0), at(12, 0))
			before := f.store.BookingCount()

			carID := f.car.ID
			if tt.carID != "" {
				carID = tt.carID
			}
			accepted, err := f.arbiter.TryReserve(context.Background(), candidate(carID, "bob", tt.start, tt.end), testNow)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, accepted)
				assert.Equal(t, before, f.store.BookingCount(), "拒否時は台帳を変更しない")

				got, err := f.bookings.GetByID(context.Background(), existing.ID)
				require.NoError(t, err)
				assert.True(t, got.Active)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, accepted)
			assert.NotEmpty(t, accepted.Booking.ID)
			assert.Equal(t, f.car.ID, accepted.Car.ID)
			assert.Equal(t, before+1, f.store.BookingCount())
			assert.Equal(t, 0, f.locks.Len(), "ロックは解放されている")
		})
	}
}

func TestArbiter_InactiveBookingsDoNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.create("alice", at(10, 0), at(12, 0))
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, b.ID, Actor{UserID: "alice"})
	require.NoError(t, err)

	again, err := f.create("bob", at(10, 0), at(12, 0))
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, again.ID)
}

func TestArbiter_DurationIsRecomputed(t *testing.T) {
	f := newFixture(t)
	c := candidate(f.car.ID, "alice", at(10, 0), at(11, 1))
	c.DurationHours = 99

	accepted, err := f.arbiter.TryReserve(context.Background(), c, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted.Booking.DurationHours)
}

func TestArbiter_ConcurrentSameWindow(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		start := make(chan struct{})
		errs := make([]error, 2)

		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				<-start
				_, errs[j] = f.arbiter.TryReserve(context.Background(), candidate(f.car.ID, "user", at(10, 0), at(12, 0)), testNow)
			}(j)
		}
		close(start)
		wg.Wait()

		accepted, conflicts := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				accepted++
			case assert.ErrorIs(t, err, booking.ErrConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, accepted)
		assert.Equal(t, 1, conflicts)
		assert.Equal(t, 1, f.store.BookingCount())
	}
}

func TestArbiter_ConcurrentRandomWindowsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	second := f.addCar(t, "Alfa Romeo Giulia")
	cars := []*car.Car{f.car, second}

	rng := rand.New(rand.NewSource(42))
	type request struct {
		carID      string
		start, end time.Time
	}
	requests := make([]request, 80)
	for i := range requests {
		startMin := 9*60 + rng.Intn(10*60)
		length := 15 + rng.Intn(180)
		day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		requests[i] = request{
			carID: cars[rng.Intn(len(cars))].ID,
			start: day.Add(time.Duration(startMin) * time.Minute),
			end:   day.Add(time.Duration(startMin+length) * time.Minute),
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, r := range requests {
		wg.Add(1)
		go func(r request) {
			defer wg.Done()
			_, err := f.arbiter.TryReserve(context.Background(), candidate(r.carID, "user", r.start, r.end), testNow)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, booking.ErrConflict)
		}(r)
	}
	wg.Wait()

	active := f.activeBookings(t)
	assert.Equal(t, accepted, len(active))
	assertNoOverlap(t, active)
}

func TestArbiter_WithoutLockManagerCommitStillSerializes(t *testing.T) {
	f := newFixture(t)
	arbiter := NewArbiter(f.txManager, f.bookings, f.cars, nil, DefaultArbiterConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = arbiter.TryReserve(context.Background(), candidate(f.car.ID, "user", at(10, 0), at(12, 0)), testNow)
		}()
	}
	wg.Wait()

	assert.Len(t, f.activeBookings(t), 1)
}

func TestArbiter_Timeout(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultArbiterConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.LockRetries = 1000
	cfg.LockRetryDelay = 10 * time.Millisecond
	arbiter := NewArbiter(f.txManager, f.bookings, f.cars, f.locks, cfg, f.metrics)

	ctx := context.Background()
	held, err := f.locks.AcquireLock(ctx, lockKey(f.car.ID), time.Minute)
	require.NoError(t, err)

	t.Run("同じ車両のロックが解放されなければタイムアウト", func(t *testing.T) {
		_, err := arbiter.TryReserve(ctx, candidate(f.car.ID, "alice", at(10, 0), at(12, 0)), testNow)
		assert.ErrorIs(t, err, booking.ErrTimeout)
		assert.Equal(t, 0, f.store.BookingCount())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ArbitrationsTotal.WithLabelValues("timeout")))
	})

	t.Run("別の車両は待たされない", func(t *testing.T) {
		other := f.addCar(t, "Lancia Ypsilon")
		_, err := arbiter.TryReserve(ctx, candidate(other.ID, "alice", at(10, 0), at(12, 0)), testNow)
		assert.NoError(t, err)
	})

	t.Run("呼び出し元のキャンセルもタイムアウトとして扱う", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := arbiter.TryReserve(cctx, candidate(f.car.ID, "alice", at(13, 0), at(14, 0)), testNow)
		assert.ErrorIs(t, err, booking.ErrTimeout)
	})

	require.NoError(t, held.Release(ctx))

	t.Run("ロック解放後は受理される", func(t *testing.T) {
		_, err := arbiter.TryReserve(ctx, candidate(f.car.ID, "alice", at(10, 0), at(12, 0)), testNow)
		assert.NoError(t, err)
	})
}

func TestArbiter_Metrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.arbiter.TryReserve(ctx, candidate(f.car.ID, "alice", at(10, 0), at(12, 0)), testNow)
	require.NoError(t, err)
	_, err = f.arbiter.TryReserve(ctx, candidate(f.car.ID, "bob", at(11, 0), at(12, 0)), testNow)
	require.ErrorIs(t, err, booking.ErrConflict)
	_, err = f.arbiter.TryReserve(ctx, candidate(f.car.ID, "bob", at(1, 0), at(2, 0)), testNow)
	require.ErrorIs(t, err, booking.ErrPastStart)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ArbitrationsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ArbitrationsTotal.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ArbitrationsTotal.WithLabelValues("past_start")))
}

func assertNoOverlap(t *testing.T, bookings []*booking.Booking) {
	t.Helper()
	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			a, b := bookings[i], bookings[j]
			if a.CarID != b.CarID {
				continue
			}
			assert.False(t, a.Window().Overlaps(b.Window()),
				"重複: %s [%s, %s) と %s [%s, %s)", a.ID, a.StartTime, a.EndTime, b.ID, b.StartTime, b.EndTime)
		}
	}
}
