package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"zonebreak/internal/app"
	"zonebreak/internal/config"
	"zonebreak/internal/logger"
)

func main() {
	// .env is optional; explicit environment always wins.
	_ = godotenv.Load()

	cfgPath := flag.String("config", defaultConfigPath(), "path to the config file")
	backtestMode := flag.Bool("backtest", false, "replay historical bars instead of trading live")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	if cfg.App.LogPath != "" {
		logger.SetRotatingFile(cfg.App.LogPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *backtestMode {
		a, err := app.NewBacktest(cfg)
		if err != nil {
			log.Fatalf("build backtest: %v", err)
		}
		if err := a.RunBacktest(ctx); err != nil {
			log.Fatalf("backtest failed: %v", err)
		}
		return
	}

	a, err := app.NewLive(cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	logger.Infof("config loaded: env=%s instrument=%s", cfg.App.Env, cfg.Engine.Instrument)
	if err := a.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("ZONEBREAK_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}
