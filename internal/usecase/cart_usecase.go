package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gaojie/internal/domain/model"
	"gaojie/internal/domain/pricing"
	repo "gaojie/internal/repository"

	"github.com/shopspring/decimal"
)

// 1行あたりの上限
const maxCartLineQuantity = 100

// 価格変更とみなす差分
var priceChangeTolerance = decimal.RequireFromString("0.01")

// CartUsecase はセッションカートの業務ロジックです。
// 表示のたびに現在価格で合計を出し直します。
type CartUsecase struct {
	store    repo.CartStore
	products repo.ProductRepository
	rules    pricing.Rules
	now      func() time.Time
}

func NewCartUsecase(store repo.CartStore, products repo.ProductRepository, rules pricing.Rules) *CartUsecase {
	return &CartUsecase{store: store, products: products, rules: rules, now: time.Now}
}

type CartItemResponse struct {
	ProductID         int64           `json:"product_id"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Image             string          `json:"image"`
	Category          string          `json:"category"`
	Size              string          `json:"size"`
	Price             decimal.Decimal `json:"price"`
	OriginalCartPrice decimal.Decimal `json:"original_cart_price"`
	PriceChanged      bool            `json:"price_changed"`
	Quantity          int64           `json:"quantity"`
	ItemTotal         decimal.Decimal `json:"item_total"`
	InStock           bool            `json:"in_stock"`
	// 在庫管理なしならnull
	StockQuantity *int64 `json:"stock_quantity"`
}

type CartSummary struct {
	TotalItems            int64           `json:"total_items"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
	FreeShippingEligible  bool            `json:"free_shipping_eligible"`
	Currency              string          `json:"currency"`
	pricing.Totals
}

type CartResponse struct {
	Items   []CartItemResponse `json:"cart_items"`
	Summary CartSummary        `json:"summary"`
}

type AddCartInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return NewHTTPError(http.StatusBadRequest, "missing cart session")
	}
	return nil
}

// GetCart は現在価格でカートを組み立てる。promoCodeは合計の試算にだけ使う
func (u *CartUsecase) GetCart(ctx context.Context, sessionID string, promoCode string) (CartResponse, error) {
	if err := requireSession(sessionID); err != nil {
		return CartResponse{}, err
	}
	cart, err := u.store.Get(ctx, sessionID)
	if err != nil {
		return CartResponse{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	return u.buildCartResponse(ctx, cart, promoCode)
}

// AddToCart は同一商品なら数量加算し、価格スナップショットを現在価格に更新する
func (u *CartUsecase) AddToCart(ctx context.Context, sessionID string, in AddCartInput) (CartResponse, error) {
	if err := requireSession(sessionID); err != nil {
		return CartResponse{}, err
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 || in.Quantity > maxCartLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	p, err := u.findAvailable(ctx, in.ProductID)
	if err != nil {
		return CartResponse{}, err
	}

	cart, err := u.store.Get(ctx, sessionID)
	if err != nil {
		return CartResponse{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}

	newQty := in.Quantity
	i, exists := cart.Find(in.ProductID)
	if exists {
		newQty += cart.Items[i].Quantity
	}
	if newQty > maxCartLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if !p.CanFulfil(newQty) {
		return CartResponse{}, stockError(p)
	}

	now := u.now()
	if exists {
		cart.Items[i].Quantity = newQty
		cart.Items[i].PriceSnapshot = p.Price
	} else {
		cart.Items = append(cart.Items, model.CartItem{
			ProductID:     p.ID,
			Quantity:      newQty,
			PriceSnapshot: p.Price,
			AddedAt:       now,
		})
	}
	return u.save(ctx, cart, now)
}

// 数量0なら削除
func (u *CartUsecase) UpdateCartItem(ctx context.Context, sessionID string, in UpdateCartItemInput) (CartResponse, error) {
	if err := requireSession(sessionID); err != nil {
		return CartResponse{}, err
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 0 || in.Quantity > maxCartLineQuantity {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	cart, err := u.store.Get(ctx, sessionID)
	if err != nil {
		return CartResponse{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	i, ok := cart.Find(in.ProductID)
	if !ok {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "item not found in cart")
	}

	if in.Quantity == 0 {
		cart.Remove(in.ProductID)
		return u.save(ctx, cart, u.now())
	}

	p, err := u.findAvailable(ctx, in.ProductID)
	if err != nil {
		return CartResponse{}, err
	}
	if !p.CanFulfil(in.Quantity) {
		return CartResponse{}, stockError(p)
	}
	cart.Items[i].Quantity = in.Quantity
	return u.save(ctx, cart, u.now())
}

func (u *CartUsecase) RemoveCartItem(ctx context.Context, sessionID string, productID int64) (CartResponse, error) {
	if err := requireSession(sessionID); err != nil {
		return CartResponse{}, err
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	cart, err := u.store.Get(ctx, sessionID)
	if err != nil {
		return CartResponse{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	if !cart.Remove(productID) {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "item not found in cart")
	}
	return u.save(ctx, cart, u.now())
}

func (u *CartUsecase) ClearCart(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := u.store.Delete(ctx, sessionID); err != nil {
		return wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	return nil
}

// セッションが無ければ0
func (u *CartUsecase) CartCount(ctx context.Context, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, nil
	}
	cart, err := u.store.Get(ctx, sessionID)
	if err != nil {
		return 0, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	return cart.Count(), nil
}

func (u *CartUsecase) save(ctx context.Context, cart model.Cart, now time.Time) (CartResponse, error) {
	cart.UpdatedAt = now
	if err := u.store.Save(ctx, cart); err != nil {
		return CartResponse{}, wrapHTTPError(http.StatusInternalServerError, "cart error", err)
	}
	return u.buildCartResponse(ctx, cart, "")
}

// 公開中の商品だけ
func (u *CartUsecase) findAvailable(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
		return model.Product{}, wrapHTTPError(http.StatusNotFound, "product not found or unavailable", model.ErrProductUnavailable)
	}
	if err != nil {
		return model.Product{}, dbError(err)
	}
	return p, nil
}

func stockError(p model.Product) error {
	return wrapHTTPError(http.StatusBadRequest,
		fmt.Sprintf("only %d items available", p.StockQuantity), model.ErrOutOfStock)
}

// 非公開・削除済みの商品は表示から外す（カート自体は変更しない）
func (u *CartUsecase) buildCartResponse(ctx context.Context, cart model.Cart, promoCode string) (CartResponse, error) {
	ids := make([]int64, 0, len(cart.Items))
	for _, it := range cart.Items {
		ids = append(ids, it.ProductID)
	}

	byID := map[int64]model.Product{}
	if len(ids) > 0 {
		products, err := u.products.FindByIDs(ctx, ids)
		if err != nil {
			return CartResponse{}, dbError(err)
		}
		for _, p := range products {
			byID[p.ID] = p
		}
	}

	items := make([]CartItemResponse, 0, len(cart.Items))
	subtotal := decimal.Zero
	var count int64
	for _, it := range cart.Items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			continue
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(it.Quantity)).Round(2)
		item := CartItemResponse{
			ProductID:         p.ID,
			Name:              p.Name,
			Slug:              p.Slug,
			Image:             p.PrimaryImage,
			Category:          p.Category,
			Size:              p.Size,
			Price:             p.Price,
			OriginalCartPrice: it.PriceSnapshot,
			PriceChanged:      p.Price.Sub(it.PriceSnapshot).Abs().GreaterThan(priceChangeTolerance),
			Quantity:          it.Quantity,
			ItemTotal:         lineTotal,
			InStock:           p.IsInStock(),
		}
		if p.TrackInventory {
			stock := p.StockQuantity
			item.StockQuantity = &stock
		}
		items = append(items, item)
		subtotal = subtotal.Add(lineTotal)
		count += it.Quantity
	}

	totals := u.rules.Totals(subtotal, promoCode)
	return CartResponse{
		Items: items,
		Summary: CartSummary{
			TotalItems:            count,
			FreeShippingThreshold: u.rules.FreeShippingThreshold,
			FreeShippingEligible:  totals.Shipping.IsZero(),
			Currency:              u.rules.Currency,
			Totals:                totals,
		},
	}, nil
}
