package booking

import "errors"

// Booking ドメインのエラー定義
// 利用者向けの拒否理由（IsRejection が true を返すもの）と、それ以外の内部エラーを区別する
var (
	ErrInvalidWindow   = errors.New("予約期間が不正です")
	ErrPastStart       = errors.New("開始日時を過去にすることはできません")
	ErrConflict        = errors.New("この車両は指定された期間すでに予約されています")
	ErrNotFound        = errors.New("予約が見つかりません")
	ErrForbidden       = errors.New("この予約を変更する権限がありません")
	ErrAlreadyInactive = errors.New("予約はすでに終了またはキャンセルされています")
	ErrTimeout         = errors.New("予約処理が時間内に完了しませんでした")

	ErrCarIDRequired   = errors.New("車両IDは必須です")
	ErrUserIDRequired  = errors.New("ユーザーIDは必須です")
	ErrReasonRequired  = errors.New("利用目的は必須です")
	ErrAlreadyReminded = errors.New("リマインダーは送信済みです")
)

var rejections = []error{
	ErrInvalidWindow,
	ErrPastStart,
	ErrConflict,
	ErrNotFound,
	ErrForbidden,
	ErrAlreadyInactive,
	ErrTimeout,
	ErrCarIDRequired,
	ErrUserIDRequired,
	ErrReasonRequired,
	ErrAlreadyReminded,
}

// IsRejection は err が利用者に返してよい拒否理由かを返す
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
