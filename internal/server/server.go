package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gaojie/internal/config"
	"gaojie/internal/middleware"
	"gaojie/internal/repository"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func New(cfg config.Config, logger *zap.Logger, userRepo repository.UserRepository, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second
	// 決済のタイムアウトより長く
	e.Server.WriteTimeout = cfg.PaymentTimeout + 15*time.Second
	e.Server.IdleTimeout = 60 * time.Second

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FEURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Idempotency-Key", "X-CSRF-Token", "X-Cart-Session"},
		ExposeHeaders:    []string{"X-Cart-Session"},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, cfg, userRepo, h)
	return e
}

// ctxがキャンセルされたら処理中のリクエストを待って止める
func Run(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
