package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"gaojie/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

type AuthHandler struct {
	uc           *usecase.AuthUsecase
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(uc *usecase.AuthUsecase, cookieSecure bool) *AuthHandler {
	return &AuthHandler{uc: uc, cookieSecure: cookieSecure}
}

// /auth/login のリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// limiterはregister/login/change-password、loginRequiredは本人の操作用
func (h *AuthHandler) RegisterRoutes(g *echo.Group, limiter echo.MiddlewareFunc, loginRequired []echo.MiddlewareFunc) {
	g.POST("/register", h.register, limiter)
	g.POST("/login", h.login, limiter)
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)
	g.GET("/me", h.me, loginRequired...)
	g.PUT("/profile", h.updateProfile, loginRequired...)
	g.PUT("/change-password", h.changePassword, append([]echo.MiddlewareFunc{limiter}, loginRequired...)...)
}

func (h *AuthHandler) register(c echo.Context) error {
	var req usecase.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AuthHandler) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	// User-Agentを取得（refreshtokenに紐付ける）
	res, err := h.uc.Login(c.Request().Context(), req.Email, req.Password, c.Request().UserAgent())
	if err != nil {
		return writeError(c, err)
	}

	if err := h.setSessionCookies(c, res.RefreshTokenPlain, res.RefreshExpiresAt); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Body)
}

// CSRF Double Submit：cookie csrf_token と header X-CSRF-Token が同じ値
func (h *AuthHandler) refresh(c echo.Context) error {
	if !validCSRF(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	}
	ck, err := c.Cookie(refreshCookieName)
	if err != nil || ck.Value == "" {
		return unauthorized(c)
	}

	res, err := h.uc.Refresh(c.Request().Context(), ck.Value, c.Request().UserAgent())
	if err != nil {
		h.clearSessionCookies(c)
		return writeError(c, err)
	}

	if err := h.setSessionCookies(c, res.RefreshTokenPlain, res.RefreshExpiresAt); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Body)
}

func (h *AuthHandler) logout(c echo.Context) error {
	if !validCSRF(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	}
	ck, err := c.Cookie(refreshCookieName)
	if err != nil || ck.Value == "" {
		return unauthorized(c)
	}

	if err := h.uc.Logout(c.Request().Context(), ck.Value); err != nil {
		return writeError(c, err)
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	out, err := h.uc.Me(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) updateProfile(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	var req usecase.UpdateProfileInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.uc.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 成功すると他のセッションは失効し、この端末には新しいcookieを渡す
func (h *AuthHandler) changePassword(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	var req usecase.ChangePasswordInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.uc.ChangePassword(c.Request().Context(), userID, req, c.Request().UserAgent())
	if err != nil {
		return writeError(c, err)
	}
	if err := h.setSessionCookies(c, res.RefreshTokenPlain, res.RefreshExpiresAt); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res.Body)
}

func validCSRF(c echo.Context) bool {
	ck, err := c.Cookie(csrfCookieName)
	if err != nil || ck.Value == "" {
		return false
	}
	header := c.Request().Header.Get(csrfHeaderName)
	return subtle.ConstantTimeCompare([]byte(ck.Value), []byte(header)) == 1
}

// refresh cookie（HttpOnly）と csrf cookie（JSから読む）
func (h *AuthHandler) setSessionCookies(c echo.Context, plainRefresh string, exp time.Time) error {
	csrfToken, err := generateSecureToken(32)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	return nil
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	for _, ck := range []*http.Cookie{
		{Name: refreshCookieName, Path: "/api/auth", HttpOnly: true},
		{Name: csrfCookieName, Path: "/"},
	} {
		ck.MaxAge = -1
		ck.Secure = h.cookieSecure
		ck.SameSite = http.SameSiteLaxMode
		c.SetCookie(ck)
	}
}

// ランダム文字列を作る。
func generateSecureToken(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 32
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
