package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

var errTxDone = errors.New("トランザクションはすでに終了しています")

// Tx は変更をコミットまで保留するトランザクション
// コミット時に重複と状態を再検証し、すべて適用するか何も適用しない
type Tx struct {
	store *Store

	mu            sync.Mutex
	creates       []*booking.Booking
	deactivations []*booking.Booking
	done          bool
}

// Commit は保留中の変更をストアに適用する
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range t.deactivations {
		current, ok := s.bookings[d.ID]
		if !ok {
			return booking.ErrNotFound
		}
		if !current.Active {
			return booking.ErrAlreadyInactive
		}
	}
	for i, c := range t.creates {
		if _, ok := s.cars[c.CarID]; !ok {
			return errCarMissing(c.CarID)
		}
		if s.activeOverlapLocked(c.CarID, c.Window()) {
			return booking.ErrConflict
		}
		for _, other := range t.creates[:i] {
			if other.CarID == c.CarID && other.Window().Overlaps(c.Window()) {
				return booking.ErrConflict
			}
		}
	}

	for _, d := range t.deactivations {
		current := s.bookings[d.ID]
		current.Active = false
		current.DeactivatedAt = d.DeactivatedAt
		current.UpdatedAt = d.UpdatedAt
	}
	for _, c := range t.creates {
		s.bookings[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return nil
}

// Rollback は保留中の変更を破棄する
// コミット済みの場合は何もしない
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.creates = nil
	t.deactivations = nil
	return nil
}

func (t *Tx) stageCreate(b *booking.Booking) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.creates = append(t.creates, cloneBooking(b))
	return nil
}

func (t *Tx) stageDeactivate(b *booking.Booking) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.deactivations = append(t.deactivations, cloneBooking(b))
	return nil
}

func (t *Tx) stagedCreates() []*booking.Booking {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]*booking.Booking, len(t.creates))
	for i, b := range t.creates {
		result[i] = cloneBooking(b)
	}
	return result
}

// TxManager はメモリストアのトランザクションを開始する
type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

func unwrapTx(tx transaction.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errTxRequired
	}
	return t, nil
}

var _ transaction.Manager = (*TxManager)(nil)
