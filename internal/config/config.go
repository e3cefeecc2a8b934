package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FeedDigest/internal/domain"
)

const (
	configPathEnv     = "FEEDDIGEST_CONFIG"
	envFileEnv        = "FEEDDIGEST_ENV_FILE"
	llmProviderEnv    = "LLM_PROVIDER"
	llmAPIKeyEnv      = "LLM_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmBaseURLEnv     = "LLM_BASE_URL"
	sourceDirEnv      = "FEED_SOURCE_DIR"
	reportsDirEnv     = "REPORTS_DIR"
	workBackgroundEnv = "WORK_BACKGROUND"
	logLevelEnv       = "LOG_LEVEL"
	historyPathEnv    = "HISTORY_PATH"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	defaultEnvFile = ".env"
)

// Providers understood by the generation backend factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds every setting of a run. It is built once and passed by value.
type Config struct {
	LLM            LLMConfig          `yaml:"llm"`
	Feeds          FeedsConfig        `yaml:"feeds"`
	Reports        ReportsConfig      `yaml:"reports"`
	WorkBackground string             `yaml:"workBackground"`
	Logging        LoggingConfig      `yaml:"logging"`
	History        HistoryConfig      `yaml:"history"`
	Notifications  NotificationConfig `yaml:"notifications"`
}

// LLMConfig defines how to reach the language model.
type LLMConfig struct {
	Provider      string        `yaml:"provider"`
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"apiKey"`
	SystemPrompt  string        `yaml:"systemPrompt"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"maxTokens"`
	MaxToolRounds int           `yaml:"maxToolRounds"`
}

// FeedsConfig bounds feed discovery and fetching.
type FeedsConfig struct {
	SourceDir    string        `yaml:"sourceDir"`
	MaxFeeds     int           `yaml:"maxFeeds"`
	PerFeedItems int           `yaml:"perFeedItems"`
	RecentDays   int           `yaml:"recentDays"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	SummaryLimit int           `yaml:"summaryLimit"`
}

// ReportsConfig says where artifacts go.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HistoryConfig enables the SQLite run ledger when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load applies defaults, the optional YAML file, the .env file and
// environment overrides, in that order.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	envFile := os.Getenv(envFileEnv)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", envFile, err)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// WithOverrides returns a copy carrying command-line values; empty values keep the current setting.
func (c Config) WithOverrides(sourceDir, workBackground string) Config {
	if v := strings.TrimSpace(sourceDir); v != "" {
		c.Feeds.SourceDir = v
	}
	if v := strings.TrimSpace(workBackground); v != "" {
		c.WorkBackground = v
	}
	return c
}

// Validate reports configuration that makes a run impossible.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("%w: %s is not set", domain.ErrMissingCredentials, llmAPIKeyEnv)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("%w: %s is not set", domain.ErrMissingCredentials, llmModelEnv)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(llmBaseURLEnv); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(sourceDirEnv); v != "" {
		c.Feeds.SourceDir = v
	}
	if v := os.Getenv(reportsDirEnv); v != "" {
		c.Reports.Dir = v
	}
	if v := os.Getenv(workBackgroundEnv); v != "" {
		c.WorkBackground = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(historyPathEnv); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.LLM.Provider != "" {
		base.LLM.Provider = strings.ToLower(override.LLM.Provider)
	}
	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}
	if override.LLM.Timeout > 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}
	if override.LLM.MaxTokens > 0 {
		base.LLM.MaxTokens = override.LLM.MaxTokens
	}
	if override.LLM.MaxToolRounds > 0 {
		base.LLM.MaxToolRounds = override.LLM.MaxToolRounds
	}

	if override.Feeds.SourceDir != "" {
		base.Feeds.SourceDir = override.Feeds.SourceDir
	}
	if override.Feeds.MaxFeeds > 0 {
		base.Feeds.MaxFeeds = override.Feeds.MaxFeeds
	}
	if override.Feeds.PerFeedItems > 0 {
		base.Feeds.PerFeedItems = override.Feeds.PerFeedItems
	}
	if override.Feeds.RecentDays > 0 {
		base.Feeds.RecentDays = override.Feeds.RecentDays
	}
	if override.Feeds.FetchTimeout > 0 {
		base.Feeds.FetchTimeout = override.Feeds.FetchTimeout
	}
	if override.Feeds.SummaryLimit > 0 {
		base.Feeds.SummaryLimit = override.Feeds.SummaryLimit
	}

	if override.Reports.Dir != "" {
		base.Reports.Dir = override.Reports.Dir
	}
	if override.WorkBackground != "" {
		base.WorkBackground = override.WorkBackground
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.History.Path != "" {
		base.History.Path = override.History.Path
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:      ProviderOpenAI,
			SystemPrompt:  "你是一名技术情报分析师，负责从订阅源新闻中为读者筛选与其工作相关的内容。",
			Timeout:       120 * time.Second,
			MaxTokens:     4096,
			MaxToolRounds: 4,
		},
		Feeds: FeedsConfig{
			SourceDir:    "feeds",
			MaxFeeds:     30,
			PerFeedItems: 5,
			RecentDays:   7,
			FetchTimeout: 10 * time.Second,
			SummaryLimit: 700,
		},
		Reports:        ReportsConfig{Dir: "reports"},
		WorkBackground: "软件工程师，关注后端开发、云原生基础设施与 AI 工具。",
		Logging:        LoggingConfig{Level: "info"},
	}
}
