package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

// LogNotifier は通知をログに出力する
// メッセージブローカーが設定されていない環境で使用する
type LogNotifier struct {
	logger    *zap.Logger
	formatter *Formatter
}

// NewLogNotifier は LogNotifier を生成する
func NewLogNotifier(logger *zap.Logger, formatter *Formatter) *LogNotifier {
	return &LogNotifier{logger: logger, formatter: formatter}
}

func (n *LogNotifier) NotifyConfirmed(ctx context.Context, b *booking.Booking, c *car.Car) error {
	n.write(n.formatter.Confirmed(b, c))
	return nil
}

func (n *LogNotifier) NotifyStatusChanged(ctx context.Context, b *booking.Booking, c *car.Car, t booking.Transition) error {
	n.write(n.formatter.StatusChanged(b, c, t))
	return nil
}

func (n *LogNotifier) NotifyReminder(ctx context.Context, b *booking.Booking, c *car.Car) error {
	n.write(n.formatter.Reminder(b, c))
	return nil
}

func (n *LogNotifier) write(m Message) {
	n.logger.Info("通知",
		zap.String("kind", string(m.Kind)),
		zap.String("booking_id", m.BookingID),
		zap.String("user_id", m.UserID),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
}

var _ application.Notifier = (*LogNotifier)(nil)
