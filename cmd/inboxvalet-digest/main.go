package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inboxvalet/inboxvalet/internal/config"
	"github.com/inboxvalet/inboxvalet/internal/runtime"
	"github.com/inboxvalet/inboxvalet/internal/store"
	"github.com/inboxvalet/inboxvalet/internal/telegram"
	"github.com/inboxvalet/inboxvalet/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/inboxvalet/config.toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		runtime.DefaultLogger().Error("inboxvalet-digest failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		return fmt.Errorf("telegram is not configured; the digest has nowhere to go")
	}

	db, err := store.NewSQLite(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return err
	}

	digest := &watch.Digest{Store: db, Alerts: &telegram.Alerts{Client: tg}, Log: log}
	sent, err := digest.Send(ctx)
	if err != nil {
		return err
	}
	log.Info("digest complete", "alerts", sent)
	return nil
}
