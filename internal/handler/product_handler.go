package handler

import (
	"net/http"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/products の公開API
type ProductHandler struct {
	uc *usecase.CatalogUsecase
}

// DI
func NewProductHandler(uc *usecase.CatalogUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 固定パスは:idより先に登録
func (h *ProductHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/categories", h.categories)
	g.GET("/featured", h.shortcut(usecase.ShortcutFeatured))
	g.GET("/bestsellers", h.shortcut(usecase.ShortcutBestsellers))
	g.GET("/new", h.shortcut(usecase.ShortcutNew))
	g.GET("/slug/:slug", h.bySlug)
	g.GET("/:id", h.detail)
}

func bindListQuery(c echo.Context) (usecase.ListProductsInput, bool) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return usecase.ListProductsInput{}, false
	}
	perPage, ok := queryInt(c, "per_page", 12)
	if !ok {
		return usecase.ListProductsInput{}, false
	}
	return usecase.ListProductsInput{
		Page:       page,
		PerPage:    perPage,
		Category:   c.QueryParam("category"),
		Featured:   queryBool(c, "featured"),
		Bestseller: queryBool(c, "bestseller"),
		New:        queryBool(c, "new"),
		Search:     c.QueryParam("search"),
		Sort:       c.QueryParam("sort"),
	}, true
}

func (h *ProductHandler) list(c echo.Context) error {
	in, ok := bindListQuery(c)
	if !ok {
		return badRequest(c, "invalid paging")
	}
	out, err := h.uc.ListProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	p, err := h.uc.GetProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) bySlug(c echo.Context) error {
	p, err := h.uc.GetProductBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) categories(c echo.Context) error {
	out, err := h.uc.Categories(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"categories": out})
}

func (h *ProductHandler) shortcut(kind usecase.Shortcut) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, ok := queryInt(c, "limit", 4)
		if !ok {
			return badRequest(c, "invalid limit")
		}
		out, err := h.uc.Shortcut(c.Request().Context(), kind, limit)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"products": out})
	}
}
