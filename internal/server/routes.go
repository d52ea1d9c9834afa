package server

import (
	"net/http"

	"gaojie/internal/config"
	"gaojie/internal/handler"
	"gaojie/internal/middleware"
	"gaojie/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Badge        *handler.BadgeHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminProduct *handler.AdminProductHandler
	AdminBadge   *handler.AdminBadgeHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminUser    *handler.AdminUserHandler
}

// /api 配下をまとめて登録
func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")

	loginRequired := []echo.MiddlewareFunc{
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
	}
	guestOK := []echo.MiddlewareFunc{
		middleware.OptionalAuthJWT(cfg),
		middleware.OptionalTokenVersionGuard(userRepo),
	}
	cartSession := middleware.CartSession(cfg.CookieSecure, cfg.CartTTL)

	h.Product.RegisterRoutes(api.Group("/products"))
	h.Badge.RegisterRoutes(api.Group("/badges"))
	h.Cart.RegisterRoutes(api.Group("/cart", cartSession))
	h.Order.RegisterRoutes(api.Group("/orders", cartSession), guestOK, loginRequired)
	h.Auth.RegisterRoutes(api.Group("/auth"), middleware.RateLimit(cfg.AuthRateLimit), loginRequired)

	// /admin 配下は全部「JWT必須 + token_version一致 + ADMIN限定」
	admin := api.Group("/admin", append(loginRequired, middleware.AdminRoleGuard())...)
	h.AdminProduct.RegisterRoutes(admin)
	h.AdminBadge.RegisterRoutes(admin)
	h.AdminOrder.RegisterRoutes(admin)
	h.AdminUser.RegisterRoutes(admin)
}
