package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
)

// localLayout はタイムゾーンなしで送られた日時の形式
// プロセスのタイムゾーンで解釈する
const localLayout = "2006-01-02T15:04"

type BookingHandler struct {
	service BookingServiceInterface
	loc     *time.Location
}

func NewBookingHandler(s BookingServiceInterface, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{service: s, loc: loc}
}

type CreateBookingRequest struct {
	StartTime string `json:"start_time" example:"2026-03-02T09:00:00+01:00"`
	EndTime   string `json:"end_time" example:"2026-03-02T12:00:00+01:00"`
	Reason    string `json:"reason" validate:"max=255" example:"顧客訪問"`
}

// parseTime は RFC3339 またはタイムゾーンなしの日時を解釈する
// 空文字は未指定として nil を返す
func (h *BookingHandler) parseTime(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(localLayout, v, h.loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create godoc
// @Summary 車両を予約
// @Description 指定した車両を期間 [start_time, end_time) で予約します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "車両ID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "期間が既存の予約と重複"
// @Failure 503 {object} api.ErrorResponse
// @Router /cars/{id}/bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	start, err := h.parseTime(req.StartTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "開始日時の形式が不正です")
	}
	end, err := h.parseTime(req.EndTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "終了日時の形式が不正です")
	}

	b, err := h.service.CreateBooking(c.Request().Context(), application.CreateBookingInput{
		CarID:     c.Param("id"),
		UserID:    actor.UserID,
		StartTime: start,
		EndTime:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 予約者本人または管理者のみ参照できます
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// List godoc
// @Summary 自分の予約一覧を取得
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /bookings [get]
func (h *BookingHandler) List(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.ListUserBookings(c.Request().Context(), actor.UserID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// Terminate godoc
// @Summary 予約を終了
// @Description 有効な予約を終了します（予約者本人または管理者）
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse "すでに終了またはキャンセル済み"
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id}/terminate [post]
func (h *BookingHandler) Terminate(c echo.Context) error {
	return h.transition(c, booking.TransitionTerminate)
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 有効な予約をキャンセルします（予約者本人または管理者）
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse "すでに終了またはキャンセル済み"
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.transition(c, booking.TransitionCancel)
}

func (h *BookingHandler) transition(c echo.Context, t booking.Transition) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	change := h.service.Terminate
	if t == booking.TransitionCancel {
		change = h.service.Cancel
	}
	b, err := change(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
