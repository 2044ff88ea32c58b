package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

// 利用者を識別するヘッダー
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// SetupMiddleware は共通ミドルウェアを設定する
// RequestLogger がエラーをレスポンスに変換するため、それより外側の
// トレースとメトリクスは確定したステータスを記録する
func SetupMiddleware(e *echo.Echo, serviceName string, m *metrics.Metrics) {
	// リクエストID
	e.Use(RequestIDMiddleware())

	// トレース
	e.Use(Tracing(serviceName))

	// HTTPメトリクス
	e.Use(PrometheusMiddleware(m))

	// 構造化リクエストログ（zap）
	e.Use(RequestLogger())

	// パニックリカバリー
	e.Use(middleware.Recover())

	e.Use(middleware.BodyLimit("64K"))

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderUserID, HeaderUserRole},
	}))
}
