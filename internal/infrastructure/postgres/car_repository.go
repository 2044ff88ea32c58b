package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

type carRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Seats     int       `db:"seats"`
	CreatedAt time.Time `db:"created_at"`
}

type CarRepository struct{ db *sqlx.DB }

func NewCarRepository(db *sqlx.DB) *CarRepository {
	return &CarRepository{db: db}
}

func (r *CarRepository) Create(ctx context.Context, c *car.Car) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO cars (id, name, seats, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Seats, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("車両作成に失敗: %w", err)
	}
	return nil
}

func (r *CarRepository) GetByID(ctx context.Context, id string) (*car.Car, error) {
	var row carRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name, seats, created_at FROM cars WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == codeInvalidText {
			return nil, car.ErrCarNotFound
		}
		return nil, fmt.Errorf("車両取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *CarRepository) List(ctx context.Context) ([]*car.Car, error) {
	var rows []carRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, name, seats, created_at FROM cars ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("車両一覧取得に失敗: %w", err)
	}
	result := make([]*car.Car, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

// LockForBooking は車両行を FOR UPDATE でロックする
// 同じ車両の調停はトランザクション終了までここで待たされる
func (r *CarRepository) LockForBooking(ctx context.Context, tx transaction.Tx, id string) (*car.Car, error) {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return nil, errTxRequired
	}
	var row carRow
	if err := sqlTx.GetContext(ctx, &row, `SELECT id, name, seats, created_at FROM cars WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == codeInvalidText {
			return nil, car.ErrCarNotFound
		}
		return nil, fmt.Errorf("車両のロックに失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (row *carRow) toEntity() *car.Car {
	return &car.Car{ID: row.ID, Name: row.Name, Seats: row.Seats, CreatedAt: row.CreatedAt}
}

var _ car.Repository = (*CarRepository)(nil)
