package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// errorStatuses はドメインエラーとHTTPステータスの対応
// 先頭から順に errors.Is で判定する
var errorStatuses = []struct {
	err    error
	status int
}{
	{booking.ErrInvalidWindow, http.StatusBadRequest},
	{booking.ErrPastStart, http.StatusBadRequest},
	{booking.ErrAlreadyInactive, http.StatusBadRequest},
	{booking.ErrCarIDRequired, http.StatusBadRequest},
	{booking.ErrUserIDRequired, http.StatusBadRequest},
	{booking.ErrReasonRequired, http.StatusBadRequest},
	{booking.ErrAlreadyReminded, http.StatusBadRequest},
	{car.ErrNameRequired, http.StatusBadRequest},
	{car.ErrInvalidSeats, http.StatusBadRequest},
	{booking.ErrForbidden, http.StatusForbidden},
	{booking.ErrNotFound, http.StatusNotFound},
	{booking.ErrConflict, http.StatusConflict},
	{booking.ErrTimeout, http.StatusServiceUnavailable},
}

// StatusOf はエラーに対応するHTTPステータスとメッセージを返す
// 対応表にないエラーは内部エラーとして扱い、詳細は返さない
func StatusOf(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	}
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			// ErrTimeout はラップされた原因を含むため、利用者には定型文だけを返す
			if s.err == booking.ErrTimeout {
				return s.status, booking.ErrTimeout.Error()
			}
			if s.err == booking.ErrNotFound && errors.Is(err, car.ErrCarNotFound) {
				return s.status, car.ErrCarNotFound.Error()
			}
			return s.status, s.err.Error()
		}
	}
	return http.StatusInternalServerError, "内部サーバーエラー"
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := StatusOf(err)

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	// JSONレスポンスを返す
	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
