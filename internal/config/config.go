// Package config loads inboxvalet settings from a TOML file with environment
// overrides. Flags on the individual CLIs take precedence over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds everything the CLIs need beyond their flags.
type Config struct {
	Mailbox string `toml:"mailbox"`
	// ConfigDir is the gmailctl credential directory (credentials.json plus
	// the cached token). Defaults to ~/.gmailctl.
	ConfigDir string `toml:"config_dir"`
	StatePath string `toml:"state_path"`
	// CriteriaPath stores user-editable triage criteria.
	CriteriaPath string `toml:"criteria_path"`

	LLM      LLM      `toml:"llm"`
	Telegram Telegram `toml:"telegram"`
	Watch    Watch    `toml:"watch"`
}

type LLM struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type Telegram struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type Watch struct {
	// Topic is the fully qualified Pub/Sub topic Gmail publishes to,
	// projects/<project>/topics/<topic>.
	Topic string `toml:"topic"`
}

// Load reads path (optional) and applies environment overrides. A missing
// file is not an error when path is empty; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// DefaultPath is ~/.config/inboxvalet/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "inboxvalet", "config.toml")
}

func defaults() *Config {
	cfg := &Config{}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.ConfigDir = filepath.Join(home, ".gmailctl")
		cfg.StatePath = filepath.Join(home, ".local", "share", "inboxvalet", "state.db")
		cfg.CriteriaPath = filepath.Join(home, ".config", "inboxvalet", "criteria.json")
	} else {
		cfg.ConfigDir = ".gmailctl"
		cfg.StatePath = "state.db"
		cfg.CriteriaPath = "criteria.json"
	}
	return cfg
}

func (c *Config) applyEnv() {
	setenv(&c.Mailbox, "INBOXVALET_MAILBOX")
	setenv(&c.ConfigDir, "INBOXVALET_CONFIG_DIR")
	setenv(&c.StatePath, "INBOXVALET_STATE_PATH")
	setenv(&c.CriteriaPath, "INBOXVALET_CRITERIA_PATH")
	setenv(&c.LLM.APIKey, "OPENROUTER_API_KEY")
	setenv(&c.LLM.Model, "INBOXVALET_LLM_MODEL")
	setenv(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setenv(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setenv(&c.Watch.Topic, "INBOXVALET_WATCH_TOPIC")
}

func setenv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
