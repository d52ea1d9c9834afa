package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gaojie/internal/config"
	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

type okResponse struct {
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	Session      string `json:"session"`
}

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *userRepoMock) CreateGuestIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *userRepoMock) FindByID(ctx context.Context, id int64) (model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) Update(ctx context.Context, user model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *userRepoMock) IncrementTokenVersion(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func validClaims(userID int64, role string, tv int) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"tv":   tv,
		"iat":  now.Unix(),
		"exp":  now.Add(15 * time.Minute).Unix(),
	}
}

func echoContext(c echo.Context) error {
	uid, _ := UserID(c)
	role, _ := c.Get(CtxUserRoleKey).(string)
	tv, _ := c.Get(CtxTokenVersionKey).(int)
	return c.JSON(http.StatusOK, okResponse{UserID: uid, Role: role, TokenVersion: tv, Session: CartSessionID(c)})
}

func serve(t *testing.T, mws []echo.MiddlewareFunc, setup func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/x", echoContext, mws...)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(r *http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cfg() config.Config {
	return config.Config{JWTSecret: testSecret}
}

func TestAuthJWT(t *testing.T) {
	t.Run("有効なトークンはcontextに入る", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, validClaims(7, "USER", 2))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, bearer(token))

		require.Equal(t, http.StatusOK, rec.Code)
		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, int64(7), got.UserID)
		assert.Equal(t, "USER", got.Role)
		assert.Equal(t, 2, got.TokenVersion)
	})

	t.Run("ヘッダ無しは401", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("HS256以外は401", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS512, validClaims(7, "USER", 0))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("期限切れは401", func(t *testing.T) {
		claims := validClaims(7, "USER", 0)
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		token := signToken(t, jwt.SigningMethodHS256, claims)
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("roleが無いと401", func(t *testing.T) {
		claims := validClaims(7, "", 0)
		token := signToken(t, jwt.SigningMethodHS256, claims)
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Bearer以外は401", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg())}, func(r *http.Request) {
			r.Header.Set("Authorization", "Basic abc")
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptionalAuthJWT(t *testing.T) {
	t.Run("ヘッダ無しはゲストで通す", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg())}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Zero(t, got.UserID)
	})

	t.Run("不正なトークンは401", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg())}, bearer("not-a-jwt"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTokenVersionGuard(t *testing.T) {
	t.Run("一致すれば通り、roleはDBの値になる", func(t *testing.T) {
		users := new(userRepoMock)
		users.On("FindByID", mock.Anything, int64(7)).
			Return(model.User{ID: 7, Role: model.RoleUser, TokenVersion: 3, IsActive: true}, nil).Once()

		token := signToken(t, jwt.SigningMethodHS256, validClaims(7, "ADMIN", 3))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg()), TokenVersionGuard(users)}, bearer(token))

		require.Equal(t, http.StatusOK, rec.Code)
		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "USER", got.Role)
		users.AssertExpectations(t)
	})

	t.Run("不一致は401", func(t *testing.T) {
		users := new(userRepoMock)
		users.On("FindByID", mock.Anything, int64(7)).
			Return(model.User{ID: 7, Role: model.RoleUser, TokenVersion: 4, IsActive: true}, nil).Once()

		token := signToken(t, jwt.SigningMethodHS256, validClaims(7, "USER", 3))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg()), TokenVersionGuard(users)}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("無効ユーザーは401", func(t *testing.T) {
		users := new(userRepoMock)
		users.On("FindByID", mock.Anything, int64(7)).
			Return(model.User{ID: 7, Role: model.RoleUser, TokenVersion: 3, IsActive: false}, nil).Once()

		token := signToken(t, jwt.SigningMethodHS256, validClaims(7, "USER", 3))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg()), TokenVersionGuard(users)}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ユーザーが消えていたら401", func(t *testing.T) {
		users := new(userRepoMock)
		users.On("FindByID", mock.Anything, int64(7)).Return(model.User{}, repo.ErrNotFound).Once()

		token := signToken(t, jwt.SigningMethodHS256, validClaims(7, "USER", 0))
		rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg()), TokenVersionGuard(users)}, bearer(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Optional版はゲストならDBを見ない", func(t *testing.T) {
		users := new(userRepoMock)
		rec := serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg()), OptionalTokenVersionGuard(users)}, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestAuthorizeAdmin(t *testing.T) {
	e := echo.New()
	newCtx := func() echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	}

	t.Run("未ログインは401", func(t *testing.T) {
		d := AuthorizeAdmin(newCtx())
		assert.Equal(t, Denied{Status: http.StatusUnauthorized, Reason: "unauthorized"}, d)
	})

	t.Run("USERは403", func(t *testing.T) {
		c := newCtx()
		c.Set(CtxUserIDKey, int64(5))
		c.Set(CtxUserRoleKey, "USER")
		assert.Equal(t, Denied{Status: http.StatusForbidden, Reason: "admin only"}, AuthorizeAdmin(c))
	})

	t.Run("ADMINは許可", func(t *testing.T) {
		c := newCtx()
		c.Set(CtxUserIDKey, int64(5))
		c.Set(CtxUserRoleKey, "ADMIN")
		assert.Equal(t, Authorized{UserID: 5}, AuthorizeAdmin(c))
	})
}

func TestAdminRoleGuard(t *testing.T) {
	users := new(userRepoMock)
	users.On("FindByID", mock.Anything, int64(9)).
		Return(model.User{ID: 9, Role: model.RoleUser, TokenVersion: 0, IsActive: true}, nil)

	// トークン上はADMINでもDBでUSERなら403
	token := signToken(t, jwt.SigningMethodHS256, validClaims(9, "ADMIN", 0))
	rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg()), TokenVersionGuard(users), AdminRoleGuard()}, bearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"admin only"}`, rec.Body.String())
}

func TestCartSession(t *testing.T) {
	t.Run("cookieが無ければ発行する", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{CartSession(false, time.Hour)}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got.Session, 36)
		assert.Equal(t, got.Session, rec.Header().Get("X-Cart-Session"))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CartSessionCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("既存のcookieを使う", func(t *testing.T) {
		const id = "0b7c2a8e-7f43-4c55-9a6e-1f1f3b7e9d10"
		rec := serve(t, []echo.MiddlewareFunc{CartSession(false, time.Hour)}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: id})
		})
		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, id, got.Session)
	})

	t.Run("uuidでない値は作り直す", func(t *testing.T) {
		rec := serve(t, []echo.MiddlewareFunc{CartSession(false, time.Hour)}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: "../../etc"})
		})
		var got okResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEqual(t, "../../etc", got.Session)
		assert.Len(t, got.Session, 36)
	})
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.GET("/x", echoContext, RateLimit(2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
