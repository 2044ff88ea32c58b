package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	clock      clock.Clock
	components map[string]Pinger
}

// NewHealthHandler はHealthHandlerを作成する
// components は名前と疎通確認先の組。nil の値は無視する
func NewHealthHandler(clk clock.Clock, components map[string]Pinger) *HealthHandler {
	checked := make(map[string]Pinger, len(components))
	for name, p := range components {
		if p != nil {
			checked[name] = p
		}
	}
	return &HealthHandler{clock: clk, components: checked}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// Check はヘルスチェックを行う
// @Summary ヘルスチェック
// @Description アプリケーションと依存サービスの健全性を確認する
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: h.clock.Now().Format(time.RFC3339),
	}
	status := http.StatusOK

	if len(h.components) > 0 {
		resp.Components = make(map[string]string, len(h.components))
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()
		for name, p := range h.components {
			if err := p.PingContext(ctx); err != nil {
				logger.Warn("ヘルスチェック失敗", zap.String("component", name), zap.Error(err))
				resp.Components[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	return c.JSON(status, resp)
}
