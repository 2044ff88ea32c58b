package car

import (
	"errors"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
)

// Car ドメインのエラー定義
var (
	// ErrCarNotFound は booking.ErrNotFound としても判定される
	ErrCarNotFound  error = notFoundError{}
	ErrNameRequired       = errors.New("車両名は必須です")
	ErrInvalidSeats       = errors.New("座席数は1以上である必要があります")
)

type notFoundError struct{}

func (notFoundError) Error() string { return "車両が見つかりません" }

func (notFoundError) Is(target error) bool { return target == booking.ErrNotFound }
