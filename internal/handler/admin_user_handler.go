package handler

import (
	"net/http"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminUserHandler struct {
	uc *usecase.AuthUsecase
}

func NewAdminUserHandler(uc *usecase.AuthUsecase) *AdminUserHandler {
	return &AdminUserHandler{uc: uc}
}

func (h *AdminUserHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/users/:id/force-logout", h.ForceLogout)
}

func (h *AdminUserHandler) ForceLogout(c echo.Context) error {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	res, err := h.uc.ForceLogout(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
