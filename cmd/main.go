package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/data"
	"github.com/KotFed0t/lemon_trader_bot/data/cache"
	"github.com/KotFed0t/lemon_trader_bot/data/session"
	"github.com/KotFed0t/lemon_trader_bot/internal/externalApi/lemonApi"
	"github.com/KotFed0t/lemon_trader_bot/internal/reportGenerator/xlsxGenerator"
	"github.com/KotFed0t/lemon_trader_bot/internal/scheduler"
	"github.com/KotFed0t/lemon_trader_bot/internal/service/traderService"
	"github.com/KotFed0t/lemon_trader_bot/internal/tgbot"
	"github.com/KotFed0t/lemon_trader_bot/internal/transport/telegram"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	lemonApiClient := lemonApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	traderSrv := traderService.New(cfg, lemonApiClient, redisCache, reportGenerator)

	sched := scheduler.New()
	sched.NewIntervalJob("fill meme cache", traderSrv.FillMemeCache, cfg.Jobs.FillMemeCacheInterval, true)
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(cfg, traderSrv, redisSession)

	tgBot := tgbot.New(cfg, tgController, redisSession)
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
