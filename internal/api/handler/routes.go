package handler

import "github.com/labstack/echo/v4"

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Health     *HealthHandler
	Cars       *CarHandler
	Bookings   *BookingHandler
	Statistics *StatisticsHandler
}

// RegisterRoutes は /health と /api/v1 以下のルートを登録する
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	v1.GET("/cars", h.Cars.List)
	v1.POST("/cars", h.Cars.Create)
	v1.GET("/cars/occupied", h.Cars.Occupied)
	v1.GET("/cars/future-bookings", h.Cars.Upcoming)
	v1.POST("/cars/:id/bookings", h.Bookings.Create)

	v1.GET("/bookings", h.Bookings.List)
	v1.GET("/bookings/:id", h.Bookings.GetByID)
	v1.POST("/bookings/:id/terminate", h.Bookings.Terminate)
	v1.POST("/bookings/:id/cancel", h.Bookings.Cancel)

	v1.GET("/statistics", h.Statistics.Get)
}
