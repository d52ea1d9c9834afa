package handler

import (
	"net/http"
	"strconv"
	"time"

	"gaojie/internal/domain/model"
	"gaojie/internal/repository"
	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

// amountを省略すると残額を全額返金
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Note   string           `json:"note"`
}

type AuditLogListResponse struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
}

func (h *AdminOrderHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/orders", h.list)
	g.GET("/orders/:id", h.detail)
	g.PUT("/orders/:id/status", h.updateStatus)
	g.PUT("/orders/:id/payment-status", h.updatePaymentStatus)
	g.POST("/orders/:id/refund", h.refund)

	g.GET("/reconciliations", h.listReconciliations)
	g.POST("/reconciliations/:id/resolve", h.resolveReconciliation)

	g.GET("/audit-logs", h.listAuditLogs)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	f := repository.AdminOrderListFilter{
		Page:          page,
		Limit:         limit,
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("payment_status"),
		Search:        c.QueryParam("search"),
	}

	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		f.UserID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid from")
		}
		f.From = &tm
	}
	if v := c.QueryParam("to"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid to")
		}
		f.To = &tm
	}

	out, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	out, err := h.uc.Get(c.Request().Context(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.AdminUpdateOrderStatusInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	// 操作した管理者IDを取得（監査ログ用）
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.UpdateStatus(c.Request().Context(), adminID, orderID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updatePaymentStatus(c echo.Context) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.AdminUpdatePaymentStatusInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.UpdatePaymentStatus(c.Request().Context(), adminID, orderID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) refund(c echo.Context) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Refund(c.Request().Context(), adminID, orderID, usecase.AdminRefundInput{
		Amount: req.Amount,
		Note:   req.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) listReconciliations(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	var resolved *bool
	if v := c.QueryParam("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "invalid resolved")
		}
		resolved = &b
	}

	out, err := h.uc.ListReconciliations(c.Request().Context(), resolved, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) resolveReconciliation(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.ResolveReconciliation(c.Request().Context(), adminID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) listAuditLogs(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	f := repository.AuditLogFilter{Page: page, Limit: limit}

	if v := c.QueryParam("actor_user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid actor_user_id")
		}
		f.ActorUserID = &id
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid resource_id")
		}
		f.ResourceID = &id
	}

	logs, total, err := h.uc.ListAuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, AuditLogListResponse{Items: logs, Total: total})
}
