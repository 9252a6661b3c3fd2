package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/app"
	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogStdout)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	a := fx.New(app.Options(cfg, logger))
	if err := a.Err(); err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			logger.Error("config_invalid", zap.String("source", ce.Source), zap.Error(ce.Err))
			fmt.Fprintln(os.Stderr, "invalid target configuration:", ce)
			os.Exit(2)
		}
		logger.Error("startup_failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("pingwatch_start",
		zap.String("addr", cfg.Addr),
		zap.String("targets", cfg.TargetsFile),
		zap.String("backend", cfg.StateBackend),
	)
	a.Run()
}
