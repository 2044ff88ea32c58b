package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

type carMissingError struct{ id string }

func (e carMissingError) Error() string { return car.ErrCarNotFound.Error() + ": " + e.id }

func (e carMissingError) Unwrap() error { return car.ErrCarNotFound }

func errCarMissing(id string) error { return carMissingError{id: id} }

type CarRepository struct{ store *Store }

func NewCarRepository(store *Store) *CarRepository {
	return &CarRepository{store: store}
}

func (r *CarRepository) Create(ctx context.Context, c *car.Car) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cars[c.ID] = cloneCar(c)
	return nil
}

func (r *CarRepository) GetByID(ctx context.Context, id string) (*car.Car, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cars[id]
	if !ok {
		return nil, car.ErrCarNotFound
	}
	return cloneCar(c), nil
}

func (r *CarRepository) List(ctx context.Context) ([]*car.Car, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	result := make([]*car.Car, 0, len(r.store.cars))
	for _, c := range r.store.cars {
		result = append(result, cloneCar(c))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// LockForBooking は車両の存在を確認する
// メモリストアでは行ロックの代わりにコミット時の再検証で重複を防ぐ
func (r *CarRepository) LockForBooking(ctx context.Context, tx transaction.Tx, id string) (*car.Car, error) {
	if _, err := unwrapTx(tx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

var _ car.Repository = (*CarRepository)(nil)
