package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// 一意制約違反なら制約名を返す
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func violates(err error, column string) bool {
	name, ok := uniqueViolation(err)
	return ok && strings.Contains(name, column)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func page(p, limit int) (int, int) {
	if p <= 0 {
		p = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return (p - 1) * limit, limit
}
