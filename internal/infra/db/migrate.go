package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrations embed.FS

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.s.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.s.Infof(format, v...) }

// 起動時に未適用のマイグレーションを流す
func Migrate(ctx context.Context, gdb *gorm.DB, log *zap.Logger) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s: log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
