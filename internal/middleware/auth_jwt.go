package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gaojie/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // string
	CtxTokenVersionKey = "token_version" // int
	// handlerが500を返したときの原因（アクセスログ用）
	CtxErrorKey = "handler_error" // error
)

var errNoToken = errors.New("no bearer token")

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := authenticate(c, cfg.JWTSecret); err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}

// ヘッダが無ければゲストとして通す。不正なトークンは401
func OptionalAuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := authenticate(c, cfg.JWTSecret)
			if err != nil && !errors.Is(err, errNoToken) {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}

// 検証できたらcontextへ保存
func authenticate(c echo.Context, secret string) error {
	//Authorizationヘッダを取得
	authz := c.Request().Header.Get("Authorization")
	if authz == "" {
		return errNoToken
	}

	//Bearer形式か確認してtokenを抜く
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errors.New("malformed authorization header")
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return errors.New("empty token")
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}

	userID, err := parseUserID(claims["sub"])
	if err != nil || userID <= 0 {
		return errors.New("invalid sub")
	}
	//USER/ADMIN
	role, err := parseString(claims["role"])
	if err != nil || role == "" {
		return errors.New("invalid role")
	}
	tv, err := parseInt(claims["tv"])
	if err != nil || tv < 0 {
		return errors.New("invalid tv")
	}

	c.Set(CtxUserIDKey, userID)
	c.Set(CtxUserRoleKey, role)
	c.Set(CtxTokenVersionKey, tv)
	return nil
}

// ログイン中のuser_id（ゲストなら0,false）
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	return id, ok && id > 0
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// user_idをint64に変換する
func parseUserID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid sub")
	}
}

func parseString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid string")
	}
	return s, nil
}

func parseInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		i64, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			return 0, err
		}
		return int(i64), nil
	default:
		return 0, errors.New("invalid int")
	}
}
