package handler

import (
	"net/http"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminBadgeHandler struct {
	uc *usecase.BadgeUsecase
}

func NewAdminBadgeHandler(uc *usecase.BadgeUsecase) *AdminBadgeHandler {
	return &AdminBadgeHandler{uc: uc}
}

func (h *AdminBadgeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/badges", h.list)
	g.POST("/badges", h.create)
	g.GET("/badges/:id", h.detail)
	g.PUT("/badges/:id", h.update)
	g.DELETE("/badges/:id", h.delete)
	g.POST("/badges/:id/toggle", h.toggle)
}

func (h *AdminBadgeHandler) list(c echo.Context) error {
	out, err := h.uc.AdminListBadges(c.Request().Context(), c.QueryParam("status"), c.QueryParam("type"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminBadgeHandler) detail(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	out, err := h.uc.AdminGetBadge(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminBadgeHandler) create(c echo.Context) error {
	var req usecase.BadgeInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminCreateBadge(c.Request().Context(), adminID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminBadgeHandler) update(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req usecase.BadgeInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminUpdateBadge(c.Request().Context(), adminID, id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminBadgeHandler) delete(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.AdminDeleteBadge(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AdminBadgeHandler) toggle(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminToggleBadge(c.Request().Context(), adminID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
