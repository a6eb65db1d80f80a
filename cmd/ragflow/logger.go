package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/ragflow/config"
)

// newLogger builds a JSON production logger or a console development logger.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build(zap.Fields(zap.String("service", "ragflow")))
}
