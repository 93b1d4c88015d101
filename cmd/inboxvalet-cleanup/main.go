package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxvalet/inboxvalet/internal/cleanup"
	"github.com/inboxvalet/inboxvalet/internal/config"
	"github.com/inboxvalet/inboxvalet/internal/llm"
	"github.com/inboxvalet/inboxvalet/internal/rate"
	"github.com/inboxvalet/inboxvalet/internal/runtime"
	"github.com/inboxvalet/inboxvalet/internal/store"
	"github.com/inboxvalet/inboxvalet/internal/telegram"
)

type cleanupConfig struct {
	configPath  string
	mailbox     string
	batchSize   int64
	noConfirm   bool
	singleBatch bool
	autoReauth  bool
	rps         int
	confirmWait time.Duration
}

func main() {
	cfg := parseCleanupFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("inboxvalet-cleanup failed", "error", err)
		os.Exit(1)
	}
}

func parseCleanupFlags() cleanupConfig {
	configPath := flag.String("config", "", "config file (default ~/.config/inboxvalet/config.toml)")
	mailbox := flag.String("mailbox", "", "mailbox address to clean (overrides config)")
	batchSize := flag.Int64("batch-size", 50, "messages per batch")
	noConfirm := flag.Bool("no-confirm", false, "do not wait for Telegram confirmation between batches")
	singleBatch := flag.Bool("single-batch", false, "process one batch and exit")
	autoReauth := flag.Bool("auto-reauth", false, "force one OAuth reauthorization on permission errors")
	rps := flag.Int("rps", 4, "max Gmail requests per second")
	confirmWait := flag.Duration("confirm-wait", 300*time.Second, "how long to wait for a confirmation reply")
	flag.Parse()

	return cleanupConfig{
		configPath:  *configPath,
		mailbox:     *mailbox,
		batchSize:   *batchSize,
		noConfirm:   *noConfirm,
		singleBatch: *singleBatch,
		autoReauth:  *autoReauth,
		rps:         *rps,
		confirmWait: *confirmWait,
	}
}

func run(cfg cleanupConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	fileCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return err
	}
	mailbox := cfg.mailbox
	if mailbox == "" {
		mailbox = fileCfg.Mailbox
	}
	if mailbox == "" {
		return fmt.Errorf("no mailbox: pass -mailbox or set it in the config file")
	}

	completer, err := llm.NewOpenRouter(fileCfg.LLM.APIKey, fileCfg.LLM.Model)
	if err != nil {
		return err
	}
	classifier := &cleanup.Classifier{LLM: completer}

	reporter := &cleanup.Reporter{Log: log, ConfirmTimeout: cfg.confirmWait}
	if fileCfg.Telegram.BotToken != "" && fileCfg.Telegram.ChatID != "" {
		tg, err := telegram.NewClient(fileCfg.Telegram.BotToken, fileCfg.Telegram.ChatID)
		if err != nil {
			return err
		}
		reporter.Channel = &telegram.Notifier{Client: tg}
	} else {
		log.Warn("telegram not configured, batch reports disabled")
	}

	svc := cleanup.NewService(
		runtime.CredentialFactory{ConfigDir: fileCfg.ConfigDir, Mailbox: mailbox},
		classifier,
		reporter,
		log,
	)

	if fileCfg.StatePath != "" {
		db, err := store.NewSQLite(fileCfg.StatePath)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer db.Close()
		svc.Audit = db
	}

	if cfg.rps > 0 {
		pacer := rate.NewPacer(cfg.rps)
		defer pacer.Stop()
		svc.Limiter = pacer
	}

	result, err := svc.Run(ctx, cleanup.Spec{
		Mailbox:           mailbox,
		BatchSize:         cfg.batchSize,
		AwaitConfirmation: !cfg.noConfirm,
		SingleBatch:       cfg.singleBatch,
		AutoReauth:        cfg.autoReauth,
	})
	if err != nil {
		return fmt.Errorf("run cleanup: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
