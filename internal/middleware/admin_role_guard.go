package middleware

import (
	"net/http"

	"gaojie/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// 管理者チェックの結果。Authorized か Denied のどちらか
type Decision interface {
	decision()
}

type Authorized struct {
	UserID int64
}

type Denied struct {
	Status int
	Reason string
}

func (Authorized) decision() {}
func (Denied) decision()     {}

// contextに入っているroleがADMINかどうかを判定します。
func AuthorizeAdmin(c echo.Context) Decision {
	userID, ok := UserID(c)
	if !ok {
		return Denied{Status: http.StatusUnauthorized, Reason: "unauthorized"}
	}
	role, ok := c.Get(CtxUserRoleKey).(string)
	if !ok || role == "" {
		return Denied{Status: http.StatusUnauthorized, Reason: "unauthorized"}
	}
	//USERは拒否、ADMINだけ許可
	if model.Role(role) != model.RoleAdmin {
		return Denied{Status: http.StatusForbidden, Reason: "admin only"}
	}
	return Authorized{UserID: userID}
}

func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch d := AuthorizeAdmin(c).(type) {
			case Authorized:
				return next(c)
			case Denied:
				return c.JSON(d.Status, errorJSON(d.Reason))
			}
			return c.JSON(http.StatusForbidden, errorJSON("admin only"))
		}
	}
}
