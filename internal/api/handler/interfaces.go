package handler

import (
	"context"

	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

// CarServiceInterface は車両サービスのインターフェース
type CarServiceInterface interface {
	CreateCar(ctx context.Context, name string, seats int) (*car.Car, error)
	ListCars(ctx context.Context) ([]application.CarAvailability, error)
	Occupied(ctx context.Context) ([]*booking.Booking, error)
	Upcoming(ctx context.Context) ([]*booking.Booking, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string, actor application.Actor) (*booking.Booking, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error)
	Terminate(ctx context.Context, id string, actor application.Actor) (*booking.Booking, error)
	Cancel(ctx context.Context, id string, actor application.Actor) (*booking.Booking, error)
}

// StatisticsServiceInterface は統計サービスのインターフェース
type StatisticsServiceInterface interface {
	Compute(ctx context.Context) (*application.Statistics, error)
}

// Pinger は依存サービスの疎通確認を行う
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc は関数を Pinger として扱うためのアダプター
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }
