package rabbitmq

import (
	"context"

	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/notifier"
)

// JSONPublisher はメッセージの発行先
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BookingNotifier は予約通知をイベントとして発行する
// ルーティングキーは通知の種類(booking.confirmed など)
type BookingNotifier struct {
	publisher JSONPublisher
	formatter *notifier.Formatter
}

// NewBookingNotifier は BookingNotifier を生成する
func NewBookingNotifier(publisher JSONPublisher, formatter *notifier.Formatter) *BookingNotifier {
	return &BookingNotifier{publisher: publisher, formatter: formatter}
}

func (n *BookingNotifier) NotifyConfirmed(ctx context.Context, b *booking.Booking, c *car.Car) error {
	return n.publish(ctx, n.formatter.Confirmed(b, c))
}

func (n *BookingNotifier) NotifyStatusChanged(ctx context.Context, b *booking.Booking, c *car.Car, t booking.Transition) error {
	return n.publish(ctx, n.formatter.StatusChanged(b, c, t))
}

func (n *BookingNotifier) NotifyReminder(ctx context.Context, b *booking.Booking, c *car.Car) error {
	return n.publish(ctx, n.formatter.Reminder(b, c))
}

func (n *BookingNotifier) publish(ctx context.Context, m notifier.Message) error {
	return n.publisher.PublishJSON(ctx, string(m.Kind), m)
}

var _ application.Notifier = (*BookingNotifier)(nil)
