package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gaojie/internal/domain/model"
	"gaojie/internal/domain/pricing"
	"gaojie/internal/handler"
	"gaojie/internal/infra/cache"
	"gaojie/internal/middleware"
	"gaojie/internal/repository"
	"gaojie/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// カートが使うメソッドだけ実装
type productsStub struct {
	repository.ProductRepository
	byID map[int64]model.Product
}

func (s productsStub) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (s productsStub) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newCartServer(t *testing.T) *echo.Echo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	products := productsStub{byID: map[int64]model.Product{
		1: {ID: 1, Name: "Hydra Serum", Slug: "hydra-serum", Price: decimal.NewFromInt(890), StockQuantity: 2, TrackInventory: true, IsActive: true},
	}}
	uc := usecase.NewCartUsecase(cache.NewCartRedisStore(client, time.Hour), products, pricing.DefaultRules())

	e := echo.New()
	g := e.Group("/api/cart", middleware.CartSession(false, time.Hour))
	handler.NewCartHandler(uc).RegisterRoutes(g)
	return e
}

func doJSON(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "gaojie_cart" {
			return ck
		}
	}
	t.Fatal("cart session cookie not set")
	return nil
}

func TestCartHandler_SessionFlow(t *testing.T) {
	e := newCartServer(t)

	rec := doJSON(e, http.MethodPost, "/api/cart/add", `{"product_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := sessionCookie(t, rec)

	var cart usecase.CartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(1), cart.Items[0].Quantity)
	assert.Equal(t, "1052.3", cart.Summary.Total.String())

	rec = doJSON(e, http.MethodPost, "/api/cart/add", `{"product_id":1,"quantity":1}`, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/cart/count", "", session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/api/cart/add", `{"product_id":1,"quantity":1}`, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "only 2 items available")

	// 別セッションからは見えない
	rec = doJSON(e, http.MethodGet, "/api/cart/count", "")
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	rec = doJSON(e, http.MethodDelete, "/api/cart/remove/1", "", session)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodDelete, "/api/cart/remove/1", "", session)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/cart/add", `{"product_id":99}`, session)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(e, http.MethodPost, "/api/cart/add", `{"product_id":`, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
