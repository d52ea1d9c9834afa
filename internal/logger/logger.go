package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// devは人間向け、それ以外はJSON
func New(goEnv string) (*zap.Logger, error) {
	if goEnv == "dev" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
