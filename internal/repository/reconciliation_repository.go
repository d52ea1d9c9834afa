package repository

import (
	"context"
	"time"

	"gaojie/internal/domain/model"
)

type ReconciliationRepository interface {
	Create(ctx context.Context, rec *model.PaymentReconciliation) error
	FindByID(ctx context.Context, id int64) (model.PaymentReconciliation, error)
	List(ctx context.Context, resolved *bool, page int, limit int) ([]model.PaymentReconciliation, int64, error)
	MarkResolved(ctx context.Context, id int64, at time.Time) error
}
