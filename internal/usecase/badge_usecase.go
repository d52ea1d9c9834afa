package usecase

import (
	"context"
	"net/http"
	"strings"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"go.uber.org/zap"
)

type BadgeUsecase struct {
	badges    repo.BadgeRepository
	audits    repo.AuditLogRepository
	validator CatalogValidator
	logger    *zap.Logger
}

func NewBadgeUsecase(badges repo.BadgeRepository, audits repo.AuditLogRepository, validator CatalogValidator, logger *zap.Logger) *BadgeUsecase {
	return &BadgeUsecase{badges: badges, audits: audits, validator: validator, logger: logger}
}

type BadgeDTO struct {
	model.Badge
	CSSClass string `json:"css_class"`
}

func toBadgeDTO(b model.Badge) BadgeDTO {
	return BadgeDTO{Badge: b, CSSClass: b.CSSClass()}
}

func toBadgeDTOs(bs []model.Badge) []BadgeDTO {
	out := make([]BadgeDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBadgeDTO(b))
	}
	return out
}

type BadgeInput struct {
	Name            string `json:"name" validate:"required,max=50"`
	BackgroundColor string `json:"background_color" validate:"required,hexcolor,len=7"`
	TextColor       string `json:"text_color" validate:"required,hexcolor,len=7"`
	IsActive        *bool  `json:"is_active"`
	IsCategoryBadge *bool  `json:"is_category_badge"`
	SortOrder       int64  `json:"sort_order" validate:"gte=0"`
}

type AdminBadgeListOutput struct {
	Badges []BadgeDTO `json:"badges"`
	repo.BadgeCounts
}

// 公開中のみ
func (u *BadgeUsecase) ListBadges(ctx context.Context, categoryOnly bool) ([]BadgeDTO, error) {
	f := repo.BadgeListFilter{Status: "active"}
	if categoryOnly {
		f.Type = "category"
	}
	bs, err := u.badges.List(ctx, f)
	if err != nil {
		return []BadgeDTO{}, dbError(err)
	}
	return toBadgeDTOs(bs), nil
}

func (u *BadgeUsecase) GetBadge(ctx context.Context, id int64) (BadgeDTO, error) {
	b, err := u.find(ctx, id)
	if err != nil {
		return BadgeDTO{}, err
	}
	if !b.IsActive {
		return BadgeDTO{}, notFound()
	}
	return toBadgeDTO(b), nil
}

func (u *BadgeUsecase) AdminGetBadge(ctx context.Context, id int64) (BadgeDTO, error) {
	b, err := u.find(ctx, id)
	if err != nil {
		return BadgeDTO{}, err
	}
	return toBadgeDTO(b), nil
}

func (u *BadgeUsecase) find(ctx context.Context, id int64) (model.Badge, error) {
	if id <= 0 {
		return model.Badge{}, NewHTTPError(http.StatusBadRequest, "invalid badge id")
	}
	b, err := u.badges.FindByID(ctx, id)
	if err != nil {
		return model.Badge{}, mapRepoError(err)
	}
	return b, nil
}

func (u *BadgeUsecase) AdminListBadges(ctx context.Context, status string, badgeType string) (AdminBadgeListOutput, error) {
	f := repo.BadgeListFilter{}
	switch status {
	case "", "all":
	case "active", "inactive":
		f.Status = status
	default:
		return AdminBadgeListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	switch badgeType {
	case "", "all":
	case "category", "promo":
		f.Type = badgeType
	default:
		return AdminBadgeListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid type")
	}

	bs, err := u.badges.List(ctx, f)
	if err != nil {
		return AdminBadgeListOutput{}, dbError(err)
	}
	counts, err := u.badges.Counts(ctx)
	if err != nil {
		return AdminBadgeListOutput{}, dbError(err)
	}
	return AdminBadgeListOutput{Badges: toBadgeDTOs(bs), BadgeCounts: counts}, nil
}

func (u *BadgeUsecase) checkName(ctx context.Context, name string, excludeID int64) error {
	taken, err := u.badges.NameExists(ctx, name, excludeID)
	if err != nil {
		return dbError(err)
	}
	if taken {
		return NewHTTPError(http.StatusConflict, "badge name already exists")
	}
	return nil
}

func (u *BadgeUsecase) slugFor(ctx context.Context, name string, excludeID int64) (string, error) {
	slug, err := uniqueSlug(ctx, slugify(name), func(ctx context.Context, s string) (bool, error) {
		return u.badges.SlugExists(ctx, s, excludeID)
	})
	if err != nil {
		return "", dbError(err)
	}
	return slug, nil
}

func (u *BadgeUsecase) AdminCreateBadge(ctx context.Context, adminUserID int64, in BadgeInput) (BadgeDTO, error) {
	if adminUserID <= 0 {
		return BadgeDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := u.validator.ValidateBadge(in); err != nil {
		return BadgeDTO{}, validationError(err)
	}
	if err := u.checkName(ctx, in.Name, 0); err != nil {
		return BadgeDTO{}, err
	}
	slug, err := u.slugFor(ctx, in.Name, 0)
	if err != nil {
		return BadgeDTO{}, err
	}

	b := &model.Badge{
		Name:            in.Name,
		Slug:            slug,
		BackgroundColor: strings.ToUpper(in.BackgroundColor),
		TextColor:       strings.ToUpper(in.TextColor),
		IsActive:        boolOr(in.IsActive, true),
		IsCategoryBadge: boolOr(in.IsCategoryBadge, true),
		SortOrder:       in.SortOrder,
	}
	if err := u.badges.Create(ctx, b); err != nil {
		return BadgeDTO{}, dbError(err)
	}
	u.audit(ctx, adminUserID, model.AuditActionCreateBadge, b.ID, nil, b)
	return toBadgeDTO(*b), nil
}

// 名前が変わったらslugも作り直す
func (u *BadgeUsecase) AdminUpdateBadge(ctx context.Context, adminUserID int64, id int64, in BadgeInput) (BadgeDTO, error) {
	if adminUserID <= 0 {
		return BadgeDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := u.validator.ValidateBadge(in); err != nil {
		return BadgeDTO{}, validationError(err)
	}
	before, err := u.find(ctx, id)
	if err != nil {
		return BadgeDTO{}, err
	}

	after := before
	if in.Name != before.Name {
		if err := u.checkName(ctx, in.Name, id); err != nil {
			return BadgeDTO{}, err
		}
		slug, err := u.slugFor(ctx, in.Name, id)
		if err != nil {
			return BadgeDTO{}, err
		}
		after.Name = in.Name
		after.Slug = slug
	}
	after.BackgroundColor = strings.ToUpper(in.BackgroundColor)
	after.TextColor = strings.ToUpper(in.TextColor)
	after.IsActive = boolOr(in.IsActive, before.IsActive)
	after.IsCategoryBadge = boolOr(in.IsCategoryBadge, before.IsCategoryBadge)
	after.SortOrder = in.SortOrder

	if err := u.badges.Update(ctx, after); err != nil {
		return BadgeDTO{}, mapRepoError(err)
	}
	u.audit(ctx, adminUserID, model.AuditActionUpdateBadge, id, before, after)
	return toBadgeDTO(after), nil
}

// 非公開にするだけ
func (u *BadgeUsecase) AdminDeleteBadge(ctx context.Context, adminUserID int64, id int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	before, err := u.find(ctx, id)
	if err != nil {
		return err
	}
	if err := u.badges.Deactivate(ctx, id); err != nil {
		return mapRepoError(err)
	}
	after := before
	after.IsActive = false
	u.audit(ctx, adminUserID, model.AuditActionDeleteBadge, id, before, after)
	return nil
}

func (u *BadgeUsecase) AdminToggleBadge(ctx context.Context, adminUserID int64, id int64) (BadgeDTO, error) {
	if adminUserID <= 0 {
		return BadgeDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	before, err := u.find(ctx, id)
	if err != nil {
		return BadgeDTO{}, err
	}
	after := before
	after.IsActive = !before.IsActive
	if err := u.badges.Update(ctx, after); err != nil {
		return BadgeDTO{}, mapRepoError(err)
	}
	u.audit(ctx, adminUserID, model.AuditActionUpdateBadge, id, before, after)
	return toBadgeDTO(after), nil
}

// 監査ログは失敗しても本処理は戻さない
func (u *BadgeUsecase) audit(ctx context.Context, actor int64, action model.AuditAction, id int64, before, after interface{}) {
	log := model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: model.AuditResourceBadge,
		ResourceID:   id,
		AfterJSON:    auditJSON(after),
	}
	if before != nil {
		log.BeforeJSON = auditJSON(before)
	}
	if err := u.audits.Create(ctx, log); err != nil {
		u.logger.Warn("write audit log", zap.String("action", string(action)), zap.Int64("badge_id", id), zap.Error(err))
	}
}
