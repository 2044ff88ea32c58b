package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/memory"
	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/lock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

// 2026-03-02 08:00 UTC を現在時刻とする
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

type fixture struct {
	store     *memory.Store
	cars      *memory.CarRepository
	bookings  *memory.BookingRepository
	txManager *memory.TxManager
	locks     *lock.KeyedArena
	clock     *clock.Fixed
	metrics   *metrics.Metrics
	notifier  *recordingNotifier
	cache     *fakeCache
	arbiter   *Arbiter
	service   *BookingService
	car       *car.Car
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:     store,
		cars:      memory.NewCarRepository(store),
		bookings:  memory.NewBookingRepository(store),
		txManager: memory.NewTxManager(store),
		locks:     lock.NewKeyedArena(),
		clock:     clock.NewFixed(testNow),
		metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
		notifier:  &recordingNotifier{},
		cache:     newFakeCache(),
	}
	f.arbiter = NewArbiter(f.txManager, f.bookings, f.cars, f.locks, DefaultArbiterConfig(), f.metrics)
	f.service = NewBookingService(f.arbiter, f.bookings, f.cars, f.txManager, f.notifier, f.clock, f.metrics,
		WithViewCache(f.cache), WithNotifyTimeout(time.Second))
	t.Cleanup(f.service.Close)
	f.car = f.addCar(t, "Fiat Panda")
	return f
}

func (f *fixture) addCar(t *testing.T, name string) *car.Car {
	t.Helper()
	c := car.NewCar(name, 5, testNow)
	require.NoError(t, f.cars.Create(context.Background(), c))
	return c
}

// seed は調停を通さずに予約を登録する
func (f *fixture) seed(t *testing.T, carID, userID string, start, end time.Time) *booking.Booking {
	t.Helper()
	ctx := context.Background()
	b := booking.NewBooking(carID, userID, booking.TimeWindow{Start: start, End: end}, "出張", testNow)
	tx, err := f.txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.bookings.Create(ctx, tx, b))
	require.NoError(t, tx.Commit())
	return b
}

func (f *fixture) create(userID string, start, end time.Time) (*booking.Booking, error) {
	return f.service.CreateBooking(context.Background(), CreateBookingInput{
		CarID:     f.car.ID,
		UserID:    userID,
		StartTime: ptr(start),
		EndTime:   ptr(end),
		Reason:    "出張",
	})
}

// activeBookings は全車両の有効な予約を返す
func (f *fixture) activeBookings(t *testing.T) []*booking.Booking {
	t.Helper()
	all, err := f.bookings.FindAll(context.Background())
	require.NoError(t, err)
	var active []*booking.Booking
	for _, b := range all {
		if b.Active {
			active = append(active, b)
		}
	}
	return active
}

type notification struct {
	kind       string
	bookingID  string
	carName    string
	transition booking.Transition
}

// recordingNotifier は受け取った通知を記録する
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	// failFor に含まれる予約IDへの通知は失敗させる
	failFor map[string]bool
}

func (n *recordingNotifier) record(kind string, b *booking.Booking, c *car.Car, t booking.Transition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[b.ID] {
		return errors.New("送信先に接続できません")
	}
	name := ""
	if c != nil {
		name = c.Name
	}
	n.events = append(n.events, notification{kind: kind, bookingID: b.ID, carName: name, transition: t})
	return nil
}

func (n *recordingNotifier) NotifyConfirmed(ctx context.Context, b *booking.Booking, c *car.Car) error {
	return n.record(notificationConfirmed, b, c, booking.Transition{})
}

func (n *recordingNotifier) NotifyStatusChanged(ctx context.Context, b *booking.Booking, c *car.Car, t booking.Transition) error {
	return n.record(notificationStatusChanged, b, c, t)
}

func (n *recordingNotifier) NotifyReminder(ctx context.Context, b *booking.Booking, c *car.Car) error {
	return n.record(notificationReminder, b, c, booking.Transition{})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

// MockNotifier は testify/mock による Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyConfirmed(ctx context.Context, b *booking.Booking, c *car.Car) error {
	args := m.Called(ctx, b, c)
	return args.Error(0)
}

func (m *MockNotifier) NotifyStatusChanged(ctx context.Context, b *booking.Booking, c *car.Car, t booking.Transition) error {
	args := m.Called(ctx, b, c, t)
	return args.Error(0)
}

func (m *MockNotifier) NotifyReminder(ctx context.Context, b *booking.Booking, c *car.Car) error {
	args := m.Called(ctx, b, c)
	return args.Error(0)
}

// fakeCache は JSON で値を保持する ViewCache
type fakeCache struct {
	mu          sync.Mutex
	values      map[string][]byte
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

var errFakeMiss = errors.New("miss")

func (c *fakeCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.values[key]
	if !ok {
		return errFakeMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = data
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.invalidated++
	return nil
}

func (c *fakeCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated
}
