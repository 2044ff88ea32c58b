package car

import (
	"strings"
	"time"
)

// Car は予約対象の車両（リソース）を表す
// 空き状況は保持せず、常に有効な予約から導出する
type Car struct {
	ID        string
	Name      string
	Seats     int
	CreatedAt time.Time
}

// NewCar は新しい車両を作成する
func NewCar(name string, seats int, now time.Time) *Car {
	return &Car{
		Name:      strings.TrimSpace(name),
		Seats:     seats,
		CreatedAt: now,
	}
}

// Validate は車両の検証を行う
func (c *Car) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Seats <= 0 {
		return ErrInvalidSeats
	}
	return nil
}
