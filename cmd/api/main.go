package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gaojie/internal/config"
	"gaojie/internal/domain/pricing"
	"gaojie/internal/handler"
	"gaojie/internal/infra/cache"
	"gaojie/internal/infra/db"
	infraPayment "gaojie/internal/infra/payment"
	infraRepo "gaojie/internal/infra/repository"
	"gaojie/internal/logger"
	"gaojie/internal/payment"
	repo "gaojie/internal/repository"
	"gaojie/internal/server"
	"gaojie/internal/usecase"
	"gaojie/internal/validator"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// .envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, gormDB, log); err != nil {
			return err
		}
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	badgeRepo := infraRepo.NewBadgeGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	reconRepo := infraRepo.NewReconciliationGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	var carts repo.CartStore
	switch cfg.CartStore {
	case "redis":
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		carts = cache.NewCartRedisStore(rdb, cfg.CartTTL)
	default:
		carts = infraRepo.NewCartGormStore(gormDB)
	}

	var gateway payment.Gateway
	switch cfg.PaymentMode {
	case "stripe":
		gateway = infraPayment.NewStripeGateway(infraPayment.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.PaymentTimeout,
		}, log)
	default:
		log.Warn("sandbox payment gateway in use")
		gateway = infraPayment.NewSandboxGateway()
	}

	basis, err := pricing.ParseShippingBasis(cfg.FreeShippingBasis)
	if err != nil {
		return err
	}
	rules := pricing.Rules{
		TaxRate:               cfg.TaxRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		Basis:                 basis,
		Currency:              cfg.Currency,
		Promos:                pricing.DefaultPromos(),
	}

	v := validator.New()

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, rtRepo, validator.NewAuthValidator(v), log)
	catalogUC := usecase.NewCatalogUsecase(productRepo, txm, validator.NewCatalogValidator(v), log)
	badgeUC := usecase.NewBadgeUsecase(badgeRepo, auditRepo, validator.NewCatalogValidator(v), log)
	cartUC := usecase.NewCartUsecase(carts, productRepo, rules)
	orderUC := usecase.NewOrderUsecase(txm, userRepo, carts, reconRepo, gateway, validator.NewCheckoutValidator(v), usecase.OrderConfig{
		Rules:          rules,
		DefaultCountry: cfg.DefaultCountry,
		PaymentTimeout: cfg.PaymentTimeout,
	}, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, auditRepo, reconRepo, gateway, cfg.Currency, cfg.PaymentTimeout, log)

	//Handler生成
	e := server.New(cfg, log, userRepo, server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, cfg.CookieSecure),
		Product:      handler.NewProductHandler(catalogUC),
		Badge:        handler.NewBadgeHandler(badgeUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminProduct: handler.NewAdminProductHandler(catalogUC),
		AdminBadge:   handler.NewAdminBadgeHandler(badgeUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminUser:    handler.NewAdminUserHandler(authUC),
	})

	log.Info("starting",
		zap.String("env", cfg.GoEnv),
		zap.String("cart_store", cfg.CartStore),
		zap.String("payment_mode", cfg.PaymentMode),
	)
	return server.Run(ctx, e, ":"+cfg.Port, log)
}
