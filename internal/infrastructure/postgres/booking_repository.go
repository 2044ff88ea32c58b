package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
)

const bookingColumns = `id, car_id, user_id, start_time, end_time, duration_hours, reason, active, reminder_sent, deactivated_at, created_at, updated_at`

type bookingRow struct {
	ID            string         `db:"id"`
	CarID         string         `db:"car_id"`
	UserID        string         `db:"user_id"`
	StartTime     time.Time      `db:"start_time"`
	EndTime       time.Time      `db:"end_time"`
	DurationHours int            `db:"duration_hours"`
	Reason        sql.NullString `db:"reason"`
	Active        bool           `db:"active"`
	ReminderSent  bool           `db:"reminder_sent"`
	DeactivatedAt *time.Time     `db:"deactivated_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create は予約を登録する
// 同じ車両の有効な予約と期間が重なる場合は排他制約により booking.ErrConflict を返す
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return errTxRequired
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := sqlTx.ExecContext(ctx, query,
		b.ID, b.CarID, b.UserID, b.StartTime, b.EndTime, b.DurationHours, b.Reason,
		b.Active, b.ReminderSent, b.DeactivatedAt, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		switch pqCode(err) {
		case codeExclusionViolation:
			return booking.ErrConflict
		case codeForeignKeyViolation:
			return car.ErrCarNotFound
		case codeCheckViolation:
			return booking.ErrInvalidWindow
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || pqCode(err) == codeInvalidText {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// FindActiveByCar は車両の有効な予約を取得する
// 呼び出し側で車両行をロックしたトランザクション内で使用する
func (r *BookingRepository) FindActiveByCar(ctx context.Context, tx transaction.Tx, carID string) ([]*booking.Booking, error) {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return nil, errTxRequired
	}
	var rows []bookingRow
	if err := sqlTx.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings WHERE car_id = $1 AND active ORDER BY start_time`, carID); err != nil {
		return nil, fmt.Errorf("有効な予約の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

// Deactivate は有効な予約のみを無効化する
func (r *BookingRepository) Deactivate(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx := UnwrapTx(tx)
	if sqlTx == nil {
		return errTxRequired
	}
	result, err := sqlTx.ExecContext(ctx,
		`UPDATE bookings SET active = FALSE, deactivated_at = $1, updated_at = $2 WHERE id = $3 AND active`,
		b.DeactivatedAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("予約の無効化に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID); err != nil {
		return fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	if !exists {
		return booking.ErrNotFound
	}
	return booking.ErrAlreadyInactive
}

// MarkReminded は未送信の予約のみをリマインダー送信済みにする
func (r *BookingRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET reminder_sent = TRUE, updated_at = $1 WHERE id = $2 AND NOT reminder_sent`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("リマインダー送信済みの更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	if !exists {
		return booking.ErrNotFound
	}
	return booking.ErrAlreadyReminded
}

func (r *BookingRepository) FindRemindable(ctx context.Context, from, to time.Time) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE active AND NOT reminder_sent AND start_time >= $1 AND start_time < $2 ORDER BY start_time`,
		from, to,
	); err != nil {
		return nil, fmt.Errorf("リマインダー対象の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *BookingRepository) FindAll(ctx context.Context) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings ORDER BY start_time`); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *BookingRepository) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *BookingRepository) FindOccupiedAt(ctx context.Context, t time.Time) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE active AND start_time <= $1 AND end_time > $1 ORDER BY start_time`,
		t,
	); err != nil {
		return nil, fmt.Errorf("利用中の予約の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *BookingRepository) FindUpcoming(ctx context.Context, t time.Time) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE active AND start_time > $1 ORDER BY start_time`,
		t,
	); err != nil {
		return nil, fmt.Errorf("今後の予約の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

// toEntity は行を予約に変換する
// duration_hours は集計用の保存値であり、読み込み時は期間から再計算する
func (row *bookingRow) toEntity() *booking.Booking {
	b := &booking.Booking{
		ID: row.ID, CarID: row.CarID, UserID: row.UserID,
		StartTime: row.StartTime, EndTime: row.EndTime,
		Reason: row.Reason.String,
		Active: row.Active, ReminderSent: row.ReminderSent,
		DeactivatedAt: row.DeactivatedAt,
		CreatedAt:     row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	b.RecomputeDuration()
	return b
}

func toEntities(rows []bookingRow) []*booking.Booking {
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

var _ booking.Repository = (*BookingRepository)(nil)
