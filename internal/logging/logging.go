// Package logging 构建进程级 zap 日志
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lvdashuaibi/voteledger/config"
)

// New 按配置创建日志并替换全局 logger，返回的函数用于恢复全局 logger
func New(cfg config.LogConfig) (*zap.Logger, func(), error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("无效的日志级别 %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("创建日志失败: %w", err)
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, restore, nil
}

// OrNop nil 时返回空 logger
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
