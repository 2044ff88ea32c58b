package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

// ReminderService は開始が近い予約へのリマインダーを扱う
type ReminderService struct {
	bookings      booking.Repository
	cars          car.Repository
	notifier      Notifier
	clock         clock.Clock
	horizon       time.Duration
	notifyTimeout time.Duration
	metrics       *metrics.Metrics
}

// NewReminderService は ReminderService を生成する
func NewReminderService(
	bookings booking.Repository,
	cars car.Repository,
	notifier Notifier,
	clk clock.Clock,
	horizon time.Duration,
	notifyTimeout time.Duration,
	m *metrics.Metrics,
) *ReminderService {
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &ReminderService{
		bookings:      bookings,
		cars:          cars,
		notifier:      notifier,
		clock:         clk,
		horizon:       horizon,
		notifyTimeout: notifyTimeout,
		metrics:       m,
	}
}

// Scan は [now, now+horizon) に開始し、まだリマインダーを送っていない有効な予約を返す
func (s *ReminderService) Scan(ctx context.Context, now time.Time, horizon time.Duration) ([]*booking.Booking, error) {
	found, err := s.bookings.FindRemindable(ctx, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("リマインダー対象の取得に失敗: %w", err)
	}

	// リポジトリの実装差を吸収するため条件を再確認する
	result := make([]*booking.Booking, 0, len(found))
	for _, b := range found {
		if b == nil || !b.Active || b.ReminderSent {
			continue
		}
		if b.StartTime.Before(now) || !b.StartTime.Before(now.Add(horizon)) {
			continue
		}
		result = append(result, b)
	}
	return result, nil
}

// MarkReminded は予約をリマインダー送信済みにする
func (s *ReminderService) MarkReminded(ctx context.Context, id string) error {
	return s.bookings.MarkReminded(ctx, id, s.clock.Now())
}

// SendReminders は対象の予約に1件ずつ通知を送り、成功したものだけを送信済みにする
// 1件の失敗は他の予約の処理を止めない
func (s *ReminderService) SendReminders(ctx context.Context) (sent, failed int, err error) {
	now := s.clock.Now()
	targets, err := s.Scan(ctx, now, s.horizon)
	if err != nil {
		return 0, 0, err
	}

	for _, b := range targets {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}

		if err := s.remind(ctx, b); err != nil {
			failed++
			s.metrics.IncReminder("failed")
			logger.Warn("リマインダーの送信に失敗しました",
				zap.String("booking_id", b.ID),
				zap.String("user_id", b.UserID),
				zap.Error(err),
			)
			continue
		}
		sent++
		s.metrics.IncReminder("sent")
	}

	if len(targets) > 0 {
		logger.Info("リマインダーを送信しました",
			zap.Int("targets", len(targets)),
			zap.Int("sent", sent),
			zap.Int("failed", failed),
		)
	}
	return sent, failed, nil
}

func (s *ReminderService) remind(ctx context.Context, b *booking.Booking) error {
	var c *car.Car
	if found, err := s.cars.GetByID(ctx, b.CarID); err == nil {
		c = found
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := safeSend(notifyCtx, func(ctx context.Context) error {
		return s.notifier.NotifyReminder(ctx, b, c)
	}); err != nil {
		s.metrics.IncNotification(notificationReminder, "failed")
		return err
	}
	s.metrics.IncNotification(notificationReminder, "success")

	if err := s.MarkReminded(ctx, b.ID); err != nil {
		// 並行する走査がすでに送信済みにしていれば成功として扱う
		if errors.Is(err, booking.ErrAlreadyReminded) {
			return nil
		}
		return fmt.Errorf("送信済みの記録に失敗: %w", err)
	}
	return nil
}
