package main

import (
	"context"
	"log"

	"github.com/mikepea/smartmark/pkg/smartmark/config"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer l.Sync()

	app, err := server.NewApp(context.Background(), cfg, l)
	if err != nil {
		l.Fatal("smartmark failed to start", logger.Error(err))
	}

	if err := app.Run(context.Background()); err != nil {
		l.Fatal("smartmark stopped with error", logger.Error(err))
	}
}
