package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-car-booking/internal/api/middleware"
	"github.com/sanosuguru/go-car-booking/internal/application"
)

const roleAdmin = "admin"

// actorFrom はリクエストヘッダーから操作者を取り出す
// 認証は外部で行われ、ヘッダーには検証済みの値が入っている前提
func actorFrom(c echo.Context) application.Actor {
	h := c.Request().Header
	return application.Actor{
		UserID:  strings.TrimSpace(h.Get(middleware.HeaderUserID)),
		IsAdmin: strings.EqualFold(strings.TrimSpace(h.Get(middleware.HeaderUserRole)), roleAdmin),
	}
}

// requireActor はユーザーIDのない操作者を拒否する
func requireActor(c echo.Context) (application.Actor, error) {
	a := actorFrom(c)
	if a.UserID == "" {
		return a, echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	return a, nil
}

// requireAdmin は管理者以外を拒否する
func requireAdmin(c echo.Context) (application.Actor, error) {
	a, err := requireActor(c)
	if err != nil {
		return a, err
	}
	if !a.IsAdmin {
		return a, echo.NewHTTPError(http.StatusForbidden, "管理者のみ実行できます")
	}
	return a, nil
}
