package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type CarHandler struct {
	service CarServiceInterface
}

func NewCarHandler(s CarServiceInterface) *CarHandler {
	return &CarHandler{service: s}
}

type CreateCarRequest struct {
	Name  string `json:"name" validate:"required,max=100" example:"Fiat Panda"`
	Seats int    `json:"seats" validate:"required,gt=0" example:"5"`
}

// Create godoc
// @Summary 車両を登録
// @Description 新しい車両を登録します（管理者のみ）
// @Tags cars
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param X-User-Role header string true "admin"
// @Param request body CreateCarRequest true "車両情報"
// @Success 201 {object} CarResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /cars [post]
func (h *CarHandler) Create(c echo.Context) error {
	if _, err := requireAdmin(c); err != nil {
		return err
	}
	var req CreateCarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	car, err := h.service.CreateCar(c.Request().Context(), req.Name, req.Seats)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toCarResponse(car))
}

// List godoc
// @Summary 車両一覧を取得
// @Description 全車両と現在の空き状況、次の予約開始時刻を返します
// @Tags cars
// @Produce json
// @Success 200 {array} CarAvailabilityResponse
// @Router /cars [get]
func (h *CarHandler) List(c echo.Context) error {
	items, err := h.service.ListCars(c.Request().Context())
	if err != nil {
		return err
	}
	resp := make([]CarAvailabilityResponse, len(items))
	for i, a := range items {
		resp[i] = toCarAvailabilityResponse(a)
	}
	return c.JSON(http.StatusOK, resp)
}

// Occupied godoc
// @Summary 利用中の予約を取得
// @Description 現在時刻を含む有効な予約を開始日時順に返します
// @Tags cars
// @Produce json
// @Success 200 {array} BookingResponse
// @Router /cars/occupied [get]
func (h *CarHandler) Occupied(c echo.Context) error {
	bookings, err := h.service.Occupied(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// Upcoming godoc
// @Summary 今後の予約を取得
// @Description まだ開始していない有効な予約を開始日時順に返します
// @Tags cars
// @Produce json
// @Success 200 {array} BookingResponse
// @Router /cars/future-bookings [get]
func (h *CarHandler) Upcoming(c echo.Context) error {
	bookings, err := h.service.Upcoming(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}
