package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 管理画面の入力チェック（validatorパッケージで実装）
type CatalogValidator interface {
	ValidateProduct(in ProductInput) error
	ValidateBadge(in BadgeInput) error
}

type CatalogUsecase struct {
	products  repo.ProductRepository
	tx        repo.TransactionManager
	validator CatalogValidator
	logger    *zap.Logger
}

// DI
func NewCatalogUsecase(
	products repo.ProductRepository,
	tx repo.TransactionManager,
	validator CatalogValidator,
	logger *zap.Logger,
) *CatalogUsecase {
	return &CatalogUsecase{
		products:  products,
		tx:        tx,
		validator: validator,
		logger:    logger,
	}
}

// 表示用の派生値を付けた商品
type ProductDTO struct {
	model.Product
	IsOnSale           bool  `json:"is_on_sale"`
	DiscountPercentage int64 `json:"discount_percentage"`
	IsInStock          bool  `json:"is_in_stock"`
	IsLowStock         bool  `json:"is_low_stock"`
}

func toProductDTO(p model.Product) ProductDTO {
	return ProductDTO{
		Product:            p,
		IsOnSale:           p.IsOnSale(),
		DiscountPercentage: p.DiscountPercentage(),
		IsInStock:          p.IsInStock(),
		IsLowStock:         p.IsLowStock(),
	}
}

func toProductDTOs(ps []model.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductDTO(p))
	}
	return out
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page       int
	PerPage    int
	Category   string
	Featured   bool
	Bestseller bool
	New        bool
	Search     string
	Sort       string
}

type ProductListOutput struct {
	Items   []ProductDTO `json:"products"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Pages   int64        `json:"pages"`
}

func (u *CatalogUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	return u.list(ctx, in, false)
}

// 非公開も含む
func (u *CatalogUsecase) AdminListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	return u.list(ctx, in, true)
}

func (u *CatalogUsecase) list(ctx context.Context, in ListProductsInput, includeInactive bool) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.PerPage < 1 || in.PerPage > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid per_page")
	}
	if len(in.Search) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "search too long")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc", "bestseller", "name":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}
	sort := in.Sort
	if sort == "" && in.Bestseller {
		sort = "bestseller"
	}

	items, total, err := u.products.List(ctx, repo.ProductListQuery{
		Page:            in.Page,
		Limit:           in.PerPage,
		Category:        strings.TrimSpace(in.Category),
		Featured:        in.Featured,
		Bestseller:      in.Bestseller,
		New:             in.New,
		Q:               strings.TrimSpace(in.Search),
		Sort:            sort,
		IncludeInactive: includeInactive,
	})
	if err != nil {
		return ProductListOutput{}, dbError(err)
	}

	pages := (total + int64(in.PerPage) - 1) / int64(in.PerPage)
	return ProductListOutput{
		Items:   toProductDTOs(items),
		Total:   total,
		Page:    in.Page,
		PerPage: in.PerPage,
		Pages:   pages,
	}, nil
}

// 閲覧数を加算して返す。非公開は404
func (u *CatalogUsecase) GetProduct(ctx context.Context, productID int64) (ProductDTO, error) {
	if productID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	p, err := u.products.FindByID(ctx, productID)
	return u.viewed(ctx, p, err)
}

func (u *CatalogUsecase) GetProductBySlug(ctx context.Context, slug string) (ProductDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "invalid slug")
	}
	p, err := u.products.FindBySlug(ctx, slug)
	return u.viewed(ctx, p, err)
}

func (u *CatalogUsecase) viewed(ctx context.Context, p model.Product, err error) (ProductDTO, error) {
	if err != nil {
		return ProductDTO{}, mapRepoError(err)
	}
	if !p.IsActive {
		return ProductDTO{}, notFound()
	}
	if err := u.products.IncrementViewCount(ctx, p.ID); err != nil {
		u.logger.Warn("increment view count", zap.Int64("product_id", p.ID), zap.Error(err))
	} else {
		p.ViewCount++
	}
	return toProductDTO(p), nil
}

func (u *CatalogUsecase) Categories(ctx context.Context) ([]repo.CategoryCount, error) {
	cats, err := u.products.Categories(ctx)
	if err != nil {
		return []repo.CategoryCount{}, dbError(err)
	}
	return cats, nil
}

// トップページ用の短い一覧
type Shortcut string

const (
	ShortcutFeatured    Shortcut = "featured"
	ShortcutBestsellers Shortcut = "bestsellers"
	ShortcutNew         Shortcut = "new"
)

func (u *CatalogUsecase) Shortcut(ctx context.Context, kind Shortcut, limit int) ([]ProductDTO, error) {
	if limit < 1 {
		limit = 4
	}
	if limit > 50 {
		limit = 50
	}

	q := repo.ProductListQuery{Page: 1, Limit: limit}
	switch kind {
	case ShortcutFeatured:
		q.Featured = true
	case ShortcutBestsellers:
		q.Bestseller = true
		q.Sort = "bestseller"
	case ShortcutNew:
		q.New = true
	default:
		return nil, NewHTTPError(http.StatusNotFound, "not found")
	}

	items, _, err := u.products.List(ctx, q)
	if err != nil {
		return nil, dbError(err)
	}
	return toProductDTOs(items), nil
}

type ProductInput struct {
	Name              string              `json:"name" validate:"required,max=100"`
	Slug              string              `json:"slug" validate:"omitempty,max=120"`
	Description       string              `json:"description" validate:"required"`
	ShortDescription  string              `json:"short_description" validate:"max=300"`
	Price             decimal.Decimal     `json:"price" validate:"gt=0"`
	OriginalPrice     decimal.NullDecimal `json:"original_price" validate:"omitempty,gt=0"`
	StockQuantity     int64               `json:"stock_quantity" validate:"gte=0"`
	LowStockThreshold int64               `json:"low_stock_threshold" validate:"gte=0"`
	TrackInventory    *bool               `json:"track_inventory"`
	Category          string              `json:"category" validate:"required,max=50"`
	SkinType          string              `json:"skin_type" validate:"max=100"`
	Ingredients       string              `json:"ingredients"`
	Size              string              `json:"size" validate:"max=20"`
	Tags              string              `json:"tags" validate:"max=500"`
	PrimaryImage      string              `json:"primary_image" validate:"max=200"`
	SecondaryImage    string              `json:"secondary_image" validate:"max=200"`
	IsActive          *bool               `json:"is_active"`
	IsFeatured        bool                `json:"is_featured"`
	IsBestseller      bool                `json:"is_bestseller"`
	IsNew             bool                `json:"is_new"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (in ProductInput) apply(p *model.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.ShortDescription = in.ShortDescription
	p.Price = in.Price.Round(2)
	p.OriginalPrice = in.OriginalPrice
	p.LowStockThreshold = in.LowStockThreshold
	p.TrackInventory = boolOr(in.TrackInventory, true)
	p.Category = strings.TrimSpace(in.Category)
	p.SkinType = in.SkinType
	p.Ingredients = in.Ingredients
	p.Size = in.Size
	p.Tags = in.Tags
	p.PrimaryImage = in.PrimaryImage
	p.SecondaryImage = in.SecondaryImage
	p.IsActive = boolOr(in.IsActive, true)
	p.IsFeatured = in.IsFeatured
	p.IsBestseller = in.IsBestseller
	p.IsNew = in.IsNew
}

func (u *CatalogUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in ProductInput) (ProductDTO, error) {
	if adminUserID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.validator.ValidateProduct(in); err != nil {
		return ProductDTO{}, validationError(err)
	}

	base := slugify(in.Slug)
	if base == "" {
		base = slugify(in.Name)
	}
	slug, err := uniqueSlug(ctx, base, u.products.SlugExists)
	if err != nil {
		return ProductDTO{}, dbError(err)
	}

	p := model.Product{Slug: slug, StockQuantity: in.StockQuantity}
	in.apply(&p)

	created, err := u.products.Create(ctx, p)
	if err != nil {
		return ProductDTO{}, dbError(err)
	}
	u.logger.Info("product created", zap.Int64("admin_user_id", adminUserID), zap.Int64("product_id", created.ID), zap.String("slug", created.Slug))
	return toProductDTO(created), nil
}

// 在庫とslugは変えない（在庫はAdminUpdateInventory）
func (u *CatalogUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in ProductInput) (ProductDTO, error) {
	if adminUserID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := u.validator.ValidateProduct(in); err != nil {
		return ProductDTO{}, validationError(err)
	}

	p, err := u.products.FindByID(ctx, productID)
	if err != nil {
		return ProductDTO{}, mapRepoError(err)
	}
	in.apply(&p)
	if err := u.products.Update(ctx, p); err != nil {
		return ProductDTO{}, mapRepoError(err)
	}
	return toProductDTO(p), nil
}

func (u *CatalogUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := u.products.SoftDelete(ctx, productID); err != nil {
		return mapRepoError(err)
	}
	u.logger.Info("product deleted", zap.Int64("admin_user_id", adminUserID), zap.Int64("product_id", productID))
	return nil
}

type stockSnapshot struct {
	Stock int64 `json:"stock"`
}

func auditJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// 在庫の現在値を設定し、調整履歴と監査ログを同じTxで残す
func (u *CatalogUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (ProductDTO, error) {
	if adminUserID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if newStock < 0 {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "reason required")
	}
	if len(reason) > 255 {
		return ProductDTO{}, NewHTTPError(http.StatusBadRequest, "reason too long")
	}

	var out ProductDTO
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return mapRepoError(err)
		}

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			return mapRepoError(err)
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       newStock - p.StockQuantity,
			StockAfter:  newStock,
			Reason:      reason,
		}); err != nil {
			return dbError(err)
		}

		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   auditJSON(stockSnapshot{Stock: p.StockQuantity}),
			AfterJSON:    auditJSON(stockSnapshot{Stock: newStock}),
		}); err != nil {
			return dbError(err)
		}

		p.StockQuantity = newStock
		out = toProductDTO(p)
		return nil
	})
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return ProductDTO{}, err
		}
		if errors.Is(err, repo.ErrNotFound) {
			return ProductDTO{}, notFound()
		}
		return ProductDTO{}, dbError(err)
	}
	return out, nil
}
