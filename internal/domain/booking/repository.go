package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

// Repository は予約台帳（Ledger）のインターフェース
// 「何が予約されているか」の唯一の情報源
type Repository interface {
	// Create は新しい予約を追加する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// FindActiveByCar は車両の有効な予約をすべて取得する
	// tx が指定された場合は同じトランザクション内で読む
	FindActiveByCar(ctx context.Context, tx transaction.Tx, carID string) ([]*Booking, error)

	// Deactivate は有効な予約だけを無効化する（条件付き更新）
	// 既に無効な場合は ErrAlreadyInactive を返す
	Deactivate(ctx context.Context, tx transaction.Tx, b *Booking) error

	// MarkReminded は未送信の予約だけを送信済みにする
	// 既に送信済みの場合は ErrAlreadyReminded を返す
	MarkReminded(ctx context.Context, id string, at time.Time) error

	// FindRemindable は active かつ未リマインドで、開始日時が [from, to) の予約を取得する
	FindRemindable(ctx context.Context, from, to time.Time) ([]*Booking, error)

	// FindAll は全予約を取得する（統計用・読み取り専用）
	FindAll(ctx context.Context) ([]*Booking, error)

	// FindByUserID はユーザーの予約一覧を取得する
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// FindOccupiedAt は t の時点で使用中の有効な予約を取得する
	FindOccupiedAt(ctx context.Context, t time.Time) ([]*Booking, error)

	// FindUpcoming は t より後に開始する有効な予約を取得する
	FindUpcoming(ctx context.Context, t time.Time) ([]*Booking, error)
}
