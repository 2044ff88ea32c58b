package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type StatisticsHandler struct {
	service StatisticsServiceInterface
}

func NewStatisticsHandler(s StatisticsServiceInterface) *StatisticsHandler {
	return &StatisticsHandler{service: s}
}

// Get godoc
// @Summary 利用統計を取得
// @Description 車両別・ユーザー別・利用目的別・月別の集計を返します（管理者のみ）
// @Tags statistics
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param X-User-Role header string true "admin"
// @Success 200 {object} application.Statistics
// @Failure 403 {object} api.ErrorResponse
// @Router /statistics [get]
func (h *StatisticsHandler) Get(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	stats, err := h.service.Compute(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
