package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/server"
	"github.com/bazaarly/kernel/backend/internal/services"
	"github.com/bazaarly/kernel/backend/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	// Setup logging with rotation
	out := io.Writer(os.Stdout)
	if err := os.MkdirAll(cfg.LogDir, 0o755); err == nil {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "kernel.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}
	logger.Init(cfg.Debug, out)
	log := logger.Log()

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "reset-operator" {
		if len(os.Args) != 4 {
			log.Fatalf("usage: %s reset-operator <username> <new-password>", os.Args[0])
		}
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("migrate database")
		}
		ops := services.NewOperatorService(db, cfg)
		if err := ops.ResetPassword(context.Background(), os.Args[2], os.Args[3]); err != nil {
			log.WithError(err).Fatal("reset operator password")
		}
		log.WithField("username", os.Args[2]).Info("operator password updated and lockout cleared")
		return
	}

	log.WithField("version", version.Full()).Infof("starting %s", version.Name)

	srv, err := server.New(db, cfg)
	if err != nil {
		log.WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
	log.Info("server stopped")
}
