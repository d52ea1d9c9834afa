package handler

import (
	"net/http"

	"gaojie/internal/middleware"
	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

// 注文作成はゲスト可、それ以外はログイン必須
func (h *OrderHandler) RegisterRoutes(g *echo.Group, guestOK []echo.MiddlewareFunc, loginRequired []echo.MiddlewareFunc) {
	g.POST("", h.create, guestOK...)
	g.GET("", h.list, loginRequired...)
	g.GET("/by-number/:number", h.byNumber, loginRequired...)
	g.GET("/:id", h.detail, loginRequired...)
	g.POST("/:id/cancel", h.cancel, loginRequired...)
}

func (h *OrderHandler) create(c echo.Context) error {
	var req usecase.PlaceOrderInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	// ゲストなら0
	req.UserID, _ = getUserIDFromContext(c)
	req.SessionID = middleware.CartSessionID(c)
	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	req.IdempotencyKey = c.Request().Header.Get("X-Idempotency-Key")

	out, err := h.uc.PlaceOrder(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) byNumber(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.GetMyOrderByNumber(c.Request().Context(), userID, c.Param("number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.CancelMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
