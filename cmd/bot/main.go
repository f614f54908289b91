// Package main содержит точку входа сервиса кошелька.
// Загружает конфигурацию, собирает приложение и запускает бота и HTTP API.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/app"
	"serotonyl.ru/wallet-bot/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Сервис кошелька запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.AppLogLevel).Warn("Неизвестный уровень логов, оставляем debug")
	}
	if cfg.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	// Контекст отменяется по Ctrl+C или docker stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	log.Info("=== Сервис готов к работе ===")

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("Сервис остановлен с ошибкой")
		application.Close()
		os.Exit(1)
	}

	log.Info("=== Сервис остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
