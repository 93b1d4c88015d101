package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxvalet/inboxvalet/internal/config"
	"github.com/inboxvalet/inboxvalet/internal/llm"
	"github.com/inboxvalet/inboxvalet/internal/prompt"
	"github.com/inboxvalet/inboxvalet/internal/rate"
	"github.com/inboxvalet/inboxvalet/internal/runtime"
	"github.com/inboxvalet/inboxvalet/internal/store"
	"github.com/inboxvalet/inboxvalet/internal/telegram"
	"github.com/inboxvalet/inboxvalet/internal/watch"
)

type watchConfig struct {
	configPath string
	mailbox    string
	topic      string
	start      bool
	stop       bool
	autoReauth bool
	rps        int

	criteriaAdd     string
	criteriaList    bool
	criteriaRemove  string
	criteriaEnable  string
	criteriaDisable string
}

func (c watchConfig) criteriaRequested() bool {
	return c.criteriaAdd != "" || c.criteriaList ||
		c.criteriaRemove != "" || c.criteriaEnable != "" || c.criteriaDisable != ""
}

func main() {
	cfg := parseWatchFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("inboxvalet-watch failed", "error", err)
		os.Exit(1)
	}
}

func parseWatchFlags() watchConfig {
	configPath := flag.String("config", "", "config file (default ~/.config/inboxvalet/config.toml)")
	mailbox := flag.String("mailbox", "", "mailbox address (overrides config)")
	topic := flag.String("topic", "", "Pub/Sub topic for -start (overrides config)")
	start := flag.Bool("start", false, "register a Gmail watch and exit")
	stop := flag.Bool("stop", false, "cancel the Gmail watch and exit")
	autoReauth := flag.Bool("auto-reauth", false, "force one OAuth reauthorization on permission errors")
	rps := flag.Int("rps", 4, "max Gmail requests per second")
	criteriaAdd := flag.String("criteria-add", "", "add a triage criterion and exit")
	criteriaList := flag.Bool("criteria-list", false, "print the triage criteria and exit")
	criteriaRemove := flag.String("criteria-remove", "", "remove the triage criterion with this ID and exit")
	criteriaEnable := flag.String("criteria-enable", "", "enable the triage criterion with this ID and exit")
	criteriaDisable := flag.String("criteria-disable", "", "disable the triage criterion with this ID and exit")
	flag.Parse()

	return watchConfig{
		configPath:      *configPath,
		mailbox:         *mailbox,
		topic:           *topic,
		start:           *start,
		stop:            *stop,
		autoReauth:      *autoReauth,
		rps:             *rps,
		criteriaAdd:     *criteriaAdd,
		criteriaList:    *criteriaList,
		criteriaRemove:  *criteriaRemove,
		criteriaEnable:  *criteriaEnable,
		criteriaDisable: *criteriaDisable,
	}
}

// With neither -start nor -stop, a Pub/Sub push envelope is read from stdin
// and processed.
func run(cfg watchConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()

	fileCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return err
	}

	if cfg.criteriaRequested() {
		return runCriteria(cfg, fileCfg.CriteriaPath, os.Stdout)
	}

	mailbox := cfg.mailbox
	if mailbox == "" {
		mailbox = fileCfg.Mailbox
	}
	if mailbox == "" {
		return fmt.Errorf("no mailbox: pass -mailbox or set it in the config file")
	}

	db, err := store.NewSQLite(fileCfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	completer, err := llm.NewOpenRouter(fileCfg.LLM.APIKey, fileCfg.LLM.Model)
	if err != nil {
		return err
	}
	var criteria watch.CriteriaSource
	if fileCfg.CriteriaPath != "" {
		mgr, err := prompt.NewManager(fileCfg.CriteriaPath)
		if err != nil {
			return err
		}
		criteria = mgr
	}

	proc := watch.NewProcessor(
		runtime.CredentialFactory{ConfigDir: fileCfg.ConfigDir, Mailbox: mailbox},
		watch.NewTriager(completer, criteria),
		db,
		log,
	)
	proc.AutoReauth = cfg.autoReauth

	if fileCfg.Telegram.BotToken != "" && fileCfg.Telegram.ChatID != "" {
		tg, err := telegram.NewClient(fileCfg.Telegram.BotToken, fileCfg.Telegram.ChatID)
		if err != nil {
			return err
		}
		proc.Alerts = &telegram.Alerts{Client: tg}
	}

	if cfg.rps > 0 {
		pacer := rate.NewPacer(cfg.rps)
		defer pacer.Stop()
		proc.Limiter = pacer
	}

	switch {
	case cfg.start && cfg.stop:
		return fmt.Errorf("-start and -stop are mutually exclusive")
	case cfg.start:
		topic := cfg.topic
		if topic == "" {
			topic = fileCfg.Watch.Topic
		}
		if topic == "" {
			return fmt.Errorf("no topic: pass -topic or set watch.topic in the config file")
		}
		info, err := proc.StartWatch(ctx, mailbox, topic)
		if err != nil {
			return err
		}
		log.Info("watch registered", "mailbox", mailbox,
			"history_id", info.HistoryID,
			"expires", time.UnixMilli(info.Expiration).UTC().Format(time.RFC3339))
		return nil
	case cfg.stop:
		if err := proc.StopWatch(ctx); err != nil {
			return err
		}
		log.Info("watch stopped", "mailbox", mailbox)
		return nil
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read envelope from stdin: %w", err)
	}
	result, err := proc.ProcessEnvelope(ctx, raw)
	if err != nil {
		return fmt.Errorf("process notification: %w", err)
	}
	if result == nil {
		return nil
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// runCriteria handles the -criteria-* flags, which edit the criteria file and
// exit without touching Gmail.
func runCriteria(cfg watchConfig, path string, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("no criteria file: set criteria_path in the config file")
	}
	mgr, err := prompt.NewManager(path)
	if err != nil {
		return err
	}

	switch {
	case cfg.criteriaAdd != "":
		c, err := mgr.Add(cfg.criteriaAdd)
		if err != nil {
			return err
		}
		return printJSON(out, c)
	case cfg.criteriaRemove != "":
		return mgr.Delete(cfg.criteriaRemove)
	case cfg.criteriaEnable != "":
		c, err := mgr.Toggle(cfg.criteriaEnable, true)
		if err != nil {
			return err
		}
		return printJSON(out, c)
	case cfg.criteriaDisable != "":
		c, err := mgr.Toggle(cfg.criteriaDisable, false)
		if err != nil {
			return err
		}
		return printJSON(out, c)
	default:
		records, err := mgr.List()
		if err != nil {
			return err
		}
		return printJSON(out, records)
	}
}

func printJSON(out io.Writer, v any) error {
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(doc))
	return err
}
