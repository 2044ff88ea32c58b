// Package notifier は予約通知の文面と、ログへの通知先を提供する
package notifier

import (
	"fmt"
	"time"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
)

// Kind は通知の種類
type Kind string

const (
	KindConfirmed     Kind = "booking.confirmed"
	KindStatusChanged Kind = "booking.status_changed"
	KindReminder      Kind = "booking.reminder"
)

// Message は利用者に届ける通知
type Message struct {
	Kind      Kind      `json:"kind"`
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	CarID     string    `json:"car_id"`
	CarName   string    `json:"car_name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	// Status と StatusReason は状態変更の通知でのみ設定される
	Status       string `json:"status,omitempty"`
	StatusReason string `json:"status_reason,omitempty"`
}

// Formatter は利用者のタイムゾーンで通知の文面を組み立てる
type Formatter struct {
	loc *time.Location
}

// NewFormatter は Formatter を生成する
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

// Confirmed は予約確定の通知を作る
func (f *Formatter) Confirmed(b *booking.Booking, c *car.Car) Message {
	m := f.base(KindConfirmed, b, c)
	m.Subject = fmt.Sprintf("予約確定のお知らせ - ID: %s", b.ID)
	m.Body = fmt.Sprintf("%s の予約が確定しました。\n期間: %s\n利用目的: %s",
		m.CarName, f.timeRange(b), b.Reason)
	return m
}

// StatusChanged は予約の終了・キャンセルの通知を作る
func (f *Formatter) StatusChanged(b *booking.Booking, c *car.Car, t booking.Transition) Message {
	m := f.base(KindStatusChanged, b, c)
	m.Status = t.Label
	m.StatusReason = t.Reason
	m.Subject = fmt.Sprintf("予約状態変更のお知らせ - ID: %s", b.ID)
	m.Body = fmt.Sprintf("%s の予約(%s)について: %s", m.CarName, f.timeRange(b), t.Reason)
	return m
}

// Reminder は開始が近い予約のリマインダーを作る
func (f *Formatter) Reminder(b *booking.Booking, c *car.Car) Message {
	m := f.base(KindReminder, b, c)
	m.Subject = fmt.Sprintf("予約リマインダー - ID: %s", b.ID)
	m.Body = fmt.Sprintf("%s の予約がまもなく始まります。\n期間: %s", m.CarName, f.timeRange(b))
	return m
}

func (f *Formatter) base(kind Kind, b *booking.Booking, c *car.Car) Message {
	name := b.CarID
	if c != nil && c.Name != "" {
		name = c.Name
	}
	return Message{
		Kind:      kind,
		BookingID: b.ID,
		UserID:    b.UserID,
		CarID:     b.CarID,
		CarName:   name,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
	}
}

// timeRange は "2006-01-02 15:04 - 2006-01-02 15:04" 形式で期間を返す
func (f *Formatter) timeRange(b *booking.Booking) string {
	const layout = "2006-01-02 15:04"
	return b.StartTime.In(f.loc).Format(layout) + " - " + b.EndTime.In(f.loc).Format(layout)
}
