package repository

import (
	"context"
	"errors"
	"testing"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestInventory_ReserveStock_ConditionalUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewInventoryGormRepository(db)

	mock.ExpectExec(`UPDATE "products" SET .*stock_quantity.*WHERE \(id = \$\d+ AND is_active = \$\d+ AND \(track_inventory = \$\d+ OR stock_quantity >= \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := r.ReserveStock(context.Background(), 10, 2)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_ReserveStock_NotEnough(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewInventoryGormRepository(db)

	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.ReserveStock(context.Background(), 10, 5)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventory_IncreaseStock_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewInventoryGormRepository(db)

	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.IncreaseStock(context.Background(), 99, 1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOrder_ExistsByOrderNumber(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders" WHERE order_number = \$1`).
		WithArgs("GJ20260101ABCDEF12").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := r.ExistsByOrderNumber(context.Background(), "GJ20260101ABCDEF12")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrder_Create_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"})

	_, err := r.Create(context.Background(), model.Order{
		OrderNumber: "GJ20260101ABCDEF12",
		UserID:      1,
		Subtotal:    decimal.NewFromInt(100),
		TotalAmount: decimal.NewFromInt(107),
	})
	assert.ErrorIs(t, err, repo.ErrOrderNumberTaken)
}

func TestOrder_Create_IdempotencyViolation(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_user_idem"})

	_, err := r.Create(context.Background(), model.Order{OrderNumber: "GJ1", UserID: 1})
	assert.ErrorIs(t, err, repo.ErrIdempotencyKeyTaken)
}

func TestOrder_FindByOrderNumber_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE order_number = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindByOrderNumber(context.Background(), "GJ-missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUser_CreateGuestIfAbsent_ExistingEmailKeepsTxUsable(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTxManagerGorm(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users" .* ON CONFLICT \("email"\) DO NOTHING RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "is_guest", "is_active"}).
			AddRow(7, "guest@example.com", true, true))
	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var (
		got     model.User
		created bool
	)
	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		u := model.User{Email: "guest@example.com", Role: model.RoleUser, IsGuest: true, IsActive: true}
		c, err := r.Users().CreateGuestIfAbsent(ctx, &u)
		if err != nil {
			return err
		}
		got, created = u, c
		// 同じTxで続けて書ける
		_, err = r.Inventory().ReserveStock(ctx, 10, 1)
		return err
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, got.IsGuest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_CreateGuestIfAbsent_Inserts(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewUserGormRepository(db)

	mock.ExpectQuery(`INSERT INTO "users" .* ON CONFLICT \("email"\) DO NOTHING RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	u := model.User{Email: "new@example.com", Role: model.RoleUser, IsGuest: true, IsActive: true}
	created, err := r.CreateGuestIfAbsent(context.Background(), &u)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(9), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolation_OtherErrors(t *testing.T) {
	_, ok := uniqueViolation(errors.New("boom"))
	assert.False(t, ok)

	_, ok = uniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)
}

func TestPage_Defaults(t *testing.T) {
	offset, limit := page(0, 0)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 20, limit)

	offset, limit = page(3, 12)
	assert.Equal(t, 24, offset)
	assert.Equal(t, 12, limit)

	_, limit = page(1, 1000)
	assert.Equal(t, 20, limit)
}
