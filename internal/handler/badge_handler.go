package handler

import (
	"net/http"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

type BadgeHandler struct {
	uc *usecase.BadgeUsecase
}

func NewBadgeHandler(uc *usecase.BadgeUsecase) *BadgeHandler {
	return &BadgeHandler{uc: uc}
}

func (h *BadgeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.detail)
}

func (h *BadgeHandler) list(c echo.Context) error {
	out, err := h.uc.ListBadges(c.Request().Context(), queryBool(c, "category_only"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"badges": out})
}

func (h *BadgeHandler) detail(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	b, err := h.uc.GetBadge(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
