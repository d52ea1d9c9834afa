package handler

import (
	"net/http"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

// InventoryUpdateRequest は在庫更新の入力です。
type InventoryUpdateRequest struct {
	Stock  int64  `json:"stock"`
	Reason string `json:"reason"`
}

// /admin/products と /admin/inventory をまとめる
type AdminProductHandler struct {
	uc *usecase.CatalogUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.CatalogUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// gは認証とAdminRoleGuard済みの/api/admin
func (h *AdminProductHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/products", h.listProducts)
	g.POST("/products", h.createProduct)
	g.PUT("/products/:id", h.updateProduct)
	g.DELETE("/products/:id", h.deleteProduct)
	g.PUT("/inventory/:product_id", h.updateInventory)
}

func (h *AdminProductHandler) listProducts(c echo.Context) error {
	in, ok := bindListQuery(c)
	if !ok {
		return badRequest(c, "invalid paging")
	}
	out, err := h.uc.AdminListProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminCreateProduct(c.Request().Context(), adminID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminUpdateProduct(c.Request().Context(), adminID, id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.AdminDeleteProduct(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AdminProductHandler) updateInventory(c echo.Context) error {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return badRequest(c, "invalid product_id")
	}

	var req InventoryUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminUpdateInventory(c.Request().Context(), adminID, productID, req.Stock, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
