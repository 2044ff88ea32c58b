package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

type BookingRepository struct{ store *Store }

func NewBookingRepository(store *Store) *BookingRepository {
	return &BookingRepository{store: store}
}

// Create は予約をトランザクションに保留する。ストアへの反映はコミット時に行う
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return t.stageCreate(b)
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return cloneBooking(b), nil
}

// FindActiveByCar はコミット済みの有効な予約と、同じトランザクションで保留中の予約を返す
func (r *BookingRepository) FindActiveByCar(ctx context.Context, tx transaction.Tx, carID string) ([]*booking.Booking, error) {
	t, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	result := r.store.selectBookings(func(b *booking.Booking) bool {
		return b.CarID == carID && b.Active
	})
	for _, b := range t.stagedCreates() {
		if b.CarID == carID && b.Active {
			result = append(result, b)
		}
	}
	sortByStart(result)
	return result, nil
}

// Deactivate は無効化をトランザクションに保留する
// 現時点で有効でなければ即座にエラーを返し、コミット時にも再確認する
func (r *BookingRepository) Deactivate(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	current, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if !current.Active {
		return booking.ErrAlreadyInactive
	}
	return t.stageDeactivate(b)
}

func (r *BookingRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.bookings[id]
	if !ok {
		return booking.ErrNotFound
	}
	return b.MarkReminded(at)
}

func (r *BookingRepository) FindRemindable(ctx context.Context, from, to time.Time) ([]*booking.Booking, error) {
	result := r.store.selectBookings(func(b *booking.Booking) bool {
		return b.Active && !b.ReminderSent && !b.StartTime.Before(from) && b.StartTime.Before(to)
	})
	sortByStart(result)
	return result, nil
}

func (r *BookingRepository) FindAll(ctx context.Context) ([]*booking.Booking, error) {
	result := r.store.selectBookings(func(*booking.Booking) bool { return true })
	sortByStart(result)
	return result, nil
}

func (r *BookingRepository) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	result := r.store.selectBookings(func(b *booking.Booking) bool { return b.UserID == userID })
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	if offset >= len(result) {
		return []*booking.Booking{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *BookingRepository) FindOccupiedAt(ctx context.Context, t time.Time) ([]*booking.Booking, error) {
	result := r.store.selectBookings(func(b *booking.Booking) bool { return b.OccupiesAt(t) })
	sortByStart(result)
	return result, nil
}

func (r *BookingRepository) FindUpcoming(ctx context.Context, t time.Time) ([]*booking.Booking, error) {
	result := r.store.selectBookings(func(b *booking.Booking) bool { return b.Active && b.StartTime.After(t) })
	sortByStart(result)
	return result, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
