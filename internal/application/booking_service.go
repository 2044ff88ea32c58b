package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

// CreateBookingInput は予約作成の入力
type CreateBookingInput struct {
	CarID     string
	UserID    string
	StartTime *time.Time
	EndTime   *time.Time
	Reason    string
}

// Actor は操作を行う利用者
type Actor struct {
	UserID  string
	IsAdmin bool
}

// BookingService は予約の作成と状態遷移を扱う
type BookingService struct {
	arbiter    *Arbiter
	bookings   booking.Repository
	cars       car.Repository
	txManager  transaction.Manager
	notifier   Notifier
	cache      ViewCache
	clock      clock.Clock
	metrics    *metrics.Metrics
	dispatcher *notificationDispatcher
}

// BookingServiceOption は BookingService の任意設定
type BookingServiceOption func(*BookingService)

// WithViewCache は予約変更時に破棄するビューキャッシュを設定する
func WithViewCache(cache ViewCache) BookingServiceOption {
	return func(s *BookingService) { s.cache = cache }
}

// WithNotifyTimeout は通知1件あたりの上限時間を設定する
func WithNotifyTimeout(d time.Duration) BookingServiceOption {
	return func(s *BookingService) { s.dispatcher = newNotificationDispatcher(d, s.metrics) }
}

// NewBookingService は BookingService を生成する
func NewBookingService(
	arbiter *Arbiter,
	bookings booking.Repository,
	cars car.Repository,
	txManager transaction.Manager,
	notifier Notifier,
	clk clock.Clock,
	m *metrics.Metrics,
	opts ...BookingServiceOption,
) *BookingService {
	s := &BookingService{
		arbiter:   arbiter,
		bookings:  bookings,
		cars:      cars,
		txManager: txManager,
		notifier:  notifier,
		clock:     clk,
		metrics:   m,
	}
	s.dispatcher = newNotificationDispatcher(0, m)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBooking は予約を調停し、受理された場合に確定通知を送る
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*booking.Booking, error) {
	if strings.TrimSpace(in.CarID) == "" {
		return nil, booking.ErrCarIDRequired
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, booking.ErrUserIDRequired
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, booking.ErrReasonRequired
	}
	window, err := booking.NewTimeWindow(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	candidate := booking.NewBooking(strings.TrimSpace(in.CarID), in.UserID, window, in.Reason, now)

	accepted, err := s.arbiter.TryReserve(ctx, candidate, now)
	if err != nil {
		fields := []zap.Field{
			zap.String("car_id", candidate.CarID),
			zap.String("user_id", candidate.UserID),
			zap.Time("start", candidate.StartTime),
			zap.Time("end", candidate.EndTime),
			zap.Error(err),
		}
		if booking.IsRejection(err) {
			logger.Info("予約が拒否されました", fields...)
		} else {
			logger.Error("予約の調停に失敗しました", fields...)
		}
		return nil, err
	}

	b := accepted.Booking
	logger.Info("予約を作成しました",
		zap.String("booking_id", b.ID),
		zap.String("car_id", b.CarID),
		zap.String("user_id", b.UserID),
		zap.Int("duration_hours", b.DurationHours),
	)

	invalidateViews(ctx, s.cache)

	snapshot := *b
	c := accepted.Car
	s.dispatcher.dispatch(notificationConfirmed, b.ID, func(ctx context.Context) error {
		return s.notifier.NotifyConfirmed(ctx, &snapshot, c)
	})

	return b, nil
}

// Terminate は予約を終了する
func (s *BookingService) Terminate(ctx context.Context, id string, actor Actor) (*booking.Booking, error) {
	return s.changeStatus(ctx, id, actor, booking.TransitionTerminate)
}

// Cancel は予約をキャンセルする
func (s *BookingService) Cancel(ctx context.Context, id string, actor Actor) (*booking.Booking, error) {
	return s.changeStatus(ctx, id, actor, booking.TransitionCancel)
}

// changeStatus は予約を無効化する
// 確認順は 存在 → 権限 → 現在の状態
func (s *BookingService) changeStatus(ctx context.Context, id string, actor Actor, t booking.Transition) (*booking.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		s.metrics.IncTransition(t.Label, transitionOutcome(err))
		return nil, err
	}

	if !b.CanBeChangedBy(actor.UserID, actor.IsAdmin) {
		s.metrics.IncTransition(t.Label, "forbidden")
		logger.Warn("予約の変更が拒否されました",
			zap.String("booking_id", id),
			zap.String("user_id", actor.UserID),
			zap.String("transition", t.Label),
		)
		return nil, booking.ErrForbidden
	}

	if err := b.Deactivate(s.clock.Now()); err != nil {
		s.metrics.IncTransition(t.Label, transitionOutcome(err))
		return nil, err
	}

	if err := s.persistDeactivation(ctx, b); err != nil {
		s.metrics.IncTransition(t.Label, transitionOutcome(err))
		return nil, err
	}
	s.metrics.IncTransition(t.Label, "success")

	logger.Info("予約の状態を変更しました",
		zap.String("booking_id", b.ID),
		zap.String("user_id", actor.UserID),
		zap.Bool("admin", actor.IsAdmin),
		zap.String("transition", t.Label),
	)

	invalidateViews(ctx, s.cache)

	snapshot := *b
	s.dispatcher.dispatch(notificationStatusChanged, b.ID, func(ctx context.Context) error {
		return s.notifier.NotifyStatusChanged(ctx, &snapshot, s.lookupCar(ctx, snapshot.CarID), t)
	})

	return b, nil
}

func (s *BookingService) persistDeactivation(ctx context.Context, b *booking.Booking) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 同時に別の遷移が先に完了していれば ErrAlreadyInactive が返る
	if err := s.bookings.Deactivate(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// GetBooking は予約を取得する
// 予約者本人または管理者のみ参照できる
func (s *BookingService) GetBooking(ctx context.Context, id string, actor Actor) (*booking.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.CanBeChangedBy(actor.UserID, actor.IsAdmin) {
		return nil, booking.ErrForbidden
	}
	return b, nil
}

// ListUserBookings はユーザーの予約一覧を取得する
func (s *BookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, booking.ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.FindByUserID(ctx, userID, limit, offset)
}

// Close は送信中の通知の完了を待つ
func (s *BookingService) Close() {
	s.dispatcher.wait()
}

// lookupCar は通知用に車両を取得する。取得できなくても通知は続行する
func (s *BookingService) lookupCar(ctx context.Context, id string) *car.Car {
	c, err := s.cars.GetByID(ctx, id)
	if err != nil {
		logger.Debug("通知用の車両取得に失敗しました", zap.String("car_id", id), zap.Error(err))
		return nil
	}
	return c
}

func transitionOutcome(err error) string {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrForbidden):
		return "forbidden"
	case errors.Is(err, booking.ErrAlreadyInactive):
		return "already_inactive"
	default:
		return "error"
	}
}
