package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agentra/internal/app"
	"agentra/internal/config"
	"agentra/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("AGENTRA_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Infof("config loaded: %d symbols, leader %s", len(cfg.Symbols), cfg.Leader.Symbol)

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
