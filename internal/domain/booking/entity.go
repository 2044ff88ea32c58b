package booking

import (
	"strings"
	"time"
)

// Status は予約の状態を表す
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Transition は Active -> Inactive への遷移の種類を表す
type Transition struct {
	// Label はレスポンスや通知で使うラベル
	Label string
	// Reason は通知に添える説明文
	Reason string
}

var (
	// TransitionTerminate は利用終了による遷移
	TransitionTerminate = Transition{Label: "terminated", Reason: "予約は終了されました。"}
	// TransitionCancel は取り消しによる遷移
	TransitionCancel = Transition{Label: "cancelled", Reason: "予約はキャンセルされました。"}
)

// Booking は車両予約エンティティを表す
type Booking struct {
	ID            string
	CarID         string
	UserID        string
	StartTime     time.Time
	EndTime       time.Time
	CreatedAt     time.Time
	DurationHours int
	Reason        string
	Active        bool
	ReminderSent  bool
	DeactivatedAt *time.Time
	UpdatedAt     time.Time
}

// NewBooking は新しい有効な予約を作成する
// now はサーバー時計（プロセス共通のタイムゾーン）の現在時刻
func NewBooking(carID, userID string, window TimeWindow, reason string, now time.Time) *Booking {
	return &Booking{
		CarID:         carID,
		UserID:        userID,
		StartTime:     window.Start,
		EndTime:       window.End,
		CreatedAt:     now,
		DurationHours: window.DurationHours(),
		Reason:        strings.TrimSpace(reason),
		Active:        true,
		ReminderSent:  false,
		UpdatedAt:     now,
	}
}

// Window は予約の期間を返す
func (b *Booking) Window() TimeWindow {
	return TimeWindow{Start: b.StartTime, End: b.EndTime}
}

// Status は現在の状態を返す
func (b *Booking) Status() Status {
	if b.Active {
		return StatusActive
	}
	return StatusInactive
}

// Validate は作成リクエストの形を検証する
func (b *Booking) Validate() error {
	if b.CarID == "" {
		return ErrCarIDRequired
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrUserIDRequired
	}
	if b.Reason == "" {
		return ErrReasonRequired
	}
	return b.Window().Validate()
}

// RecomputeDuration は保存済みの期間から所要時間を再計算する
func (b *Booking) RecomputeDuration() {
	b.DurationHours = b.Window().DurationHours()
}

// CanBeChangedBy は actor が予約の所有者または管理者かを返す
func (b *Booking) CanBeChangedBy(userID string, isAdmin bool) bool {
	return isAdmin || (userID != "" && userID == b.UserID)
}

// Deactivate は Active -> Inactive へ遷移させる
// Inactive は終端状態であり、二度目の呼び出しは ErrAlreadyInactive を返して状態を変えない
func (b *Booking) Deactivate(now time.Time) error {
	if !b.Active {
		return ErrAlreadyInactive
	}
	b.Active = false
	b.DeactivatedAt = &now
	b.UpdatedAt = now
	return nil
}

// MarkReminded はリマインダー送信済みにする（一度だけ）
func (b *Booking) MarkReminded(now time.Time) error {
	if b.ReminderSent {
		return ErrAlreadyReminded
	}
	b.ReminderSent = true
	b.UpdatedAt = now
	return nil
}

// OccupiesAt は t の時点で車両を使用中にしているかを返す
func (b *Booking) OccupiesAt(t time.Time) bool {
	return b.Active && b.Window().Contains(t)
}
