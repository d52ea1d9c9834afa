package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CartSessionCookie    = "gaojie_cart"
	CtxCartSessionKey    = "cart_session_id" // string
	cartSessionHeaderKey = "X-Cart-Session"
)

// カート用のセッションIDをcookieで発行する（ログイン不要）
func CartSession(secure bool, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if ck, err := c.Cookie(CartSessionCookie); err == nil {
				id = ck.Value
			}
			// cookieを使えないクライアント用
			if id == "" {
				id = c.Request().Header.Get(cartSessionHeaderKey)
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			c.SetCookie(&http.Cookie{
				Name:     CartSessionCookie,
				Value:    id,
				Path:     "/api",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Response().Header().Set(cartSessionHeaderKey, id)
			c.Set(CtxCartSessionKey, id)
			return next(c)
		}
	}
}

func CartSessionID(c echo.Context) string {
	id, _ := c.Get(CtxCartSessionKey).(string)
	return id
}
