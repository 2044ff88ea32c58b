package handler

import (
	"time"

	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

type BookingResponse struct {
	ID            string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CarID         string     `json:"car_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	UserID        string     `json:"user_id" example:"mario.rossi"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	DurationHours int        `json:"duration_hours" example:"3"`
	Reason        string     `json:"reason" example:"顧客訪問"`
	Status        string     `json:"status" example:"active"`
	ReminderSent  bool       `json:"reminder_sent"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, CarID: b.CarID, UserID: b.UserID,
		StartTime: b.StartTime, EndTime: b.EndTime,
		DurationHours: b.DurationHours, Reason: b.Reason,
		Status: string(b.Status()), ReminderSent: b.ReminderSent,
		DeactivatedAt: b.DeactivatedAt, CreatedAt: b.CreatedAt,
	}
}

func toBookingResponses(bs []*booking.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bs))
	for i, b := range bs {
		resp[i] = toBookingResponse(b)
	}
	return resp
}

type CarResponse struct {
	ID        string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440001"`
	Name      string    `json:"name" example:"Fiat Panda"`
	Seats     int       `json:"seats" example:"5"`
	CreatedAt time.Time `json:"created_at"`
}

func toCarResponse(c *car.Car) CarResponse {
	return CarResponse{ID: c.ID, Name: c.Name, Seats: c.Seats, CreatedAt: c.CreatedAt}
}

// CarAvailabilityResponse は空き状況付きの車両
type CarAvailabilityResponse struct {
	CarResponse
	Available      bool             `json:"available"`
	CurrentBooking *BookingResponse `json:"current_booking,omitempty"`
	NextBookingAt  *time.Time       `json:"next_booking_at,omitempty"`
}

func toCarAvailabilityResponse(a application.CarAvailability) CarAvailabilityResponse {
	resp := CarAvailabilityResponse{
		CarResponse:   toCarResponse(a.Car),
		Available:     a.Available,
		NextBookingAt: a.NextBookingAt,
	}
	if a.CurrentBooking != nil {
		b := toBookingResponse(a.CurrentBooking)
		resp.CurrentBooking = &b
	}
	return resp
}
