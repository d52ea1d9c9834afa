package model

import "time"

type AuditAction string

const (
	AuditActionUpdateStock       AuditAction = "UPDATE_STOCK"
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionRefundOrder       AuditAction = "REFUND_ORDER"
	AuditActionResolvePayment    AuditAction = "RESOLVE_PAYMENT"
	AuditActionCreateBadge       AuditAction = "CREATE_BADGE"
	AuditActionUpdateBadge       AuditAction = "UPDATE_BADGE"
	AuditActionDeleteBadge       AuditAction = "DELETE_BADGE"
)

type AuditResourceType string

const (
	AuditResourceProduct        AuditResourceType = "product"
	AuditResourceOrder          AuditResourceType = "order"
	AuditResourceBadge          AuditResourceType = "badge"
	AuditResourceReconciliation AuditResourceType = "payment_reconciliation"
)

// 管理者操作の記録。変更前後はJSON文字列で残す
type AuditLog struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  int64             `gorm:"not null;index" json:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id"`
	BeforeJSON   string            `gorm:"type:text" json:"before_json"`
	AfterJSON    string            `gorm:"type:text" json:"after_json"`
	CreatedAt    time.Time         `gorm:"not null;autoCreateTime;index" json:"created_at"`
}
