package car

import (
	"context"

	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

// Repository は車両リポジトリのインターフェース
type Repository interface {
	// Create は新しい車両を登録する
	Create(ctx context.Context, c *Car) error

	// GetByID はIDから車両を取得する
	GetByID(ctx context.Context, id string) (*Car, error)

	// List は全車両を名前順で取得する
	List(ctx context.Context) ([]*Car, error)

	// LockForBooking は車両行を排他ロックする（トランザクション必須）
	// 同じ車両に対する調停をコミットまで直列化する
	LockForBooking(ctx context.Context, tx transaction.Tx, id string) (*Car, error)
}
