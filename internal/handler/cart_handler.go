package handler

import (
	"net/http"

	"gaojie/internal/middleware"
	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/cartのHTTP。セッションはmiddleware.CartSessionが用意する
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type CartCountResponse struct {
	Count int64 `json:"count"`
}

func (h *CartHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.getCart)
	g.GET("/count", h.count)
	g.POST("/add", h.add)
	g.PUT("/update", h.update)
	g.DELETE("/remove/:product_id", h.remove)
	g.DELETE("/clear", h.clear)
}

func (h *CartHandler) getCart(c echo.Context) error {
	out, err := h.uc.GetCart(c.Request().Context(), middleware.CartSessionID(c), c.QueryParam("promo_code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) add(c echo.Context) error {
	var req usecase.AddCartInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	out, err := h.uc.AddToCart(c.Request().Context(), middleware.CartSessionID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) update(c echo.Context) error {
	var req usecase.UpdateCartItemInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdateCartItem(c.Request().Context(), middleware.CartSessionID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) remove(c echo.Context) error {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return badRequest(c, "invalid product_id")
	}

	out, err := h.uc.RemoveCartItem(c.Request().Context(), middleware.CartSessionID(c), productID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) clear(c echo.Context) error {
	if err := h.uc.ClearCart(c.Request().Context(), middleware.CartSessionID(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "cart cleared"})
}

func (h *CartHandler) count(c echo.Context) error {
	n, err := h.uc.CartCount(c.Request().Context(), middleware.CartSessionID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, CartCountResponse{Count: n})
}
