package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Ethos network API access
	Ethos EthosConfig

	// Monitor cycle timing and retention
	Monitor MonitorConfig

	// Auto-defense behavior
	Defense DefenseConfig

	// Persistence backend
	Store StoreConfig

	// Dashboard HTTP API
	API APIConfig

	// Notification channels (each optional)
	Telegram TelegramConfig
	Feishu   FeishuConfig
	Webhook  WebhookConfig

	// Triage LLM (optional)
	OpenAI OpenAIConfig

	// Log mode: production or development
	LogMode string
}

// EthosConfig contains trust-network API configuration
type EthosConfig struct {
	BaseURL      string
	SessionToken string
	OperatorKey  string // userkey whose vouches are monitored
}

// MonitorConfig contains cycle timing configuration
type MonitorConfig struct {
	IntervalMinutes    int
	WarmupSeconds      int
	AlertRetentionDays int
}

// DefenseConfig contains auto-defense configuration
type DefenseConfig struct {
	AutoEnabled bool
	AutoScore   int
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DBPath      string
	DatabaseURL string // postgres DSN; when set, sqlite is not used
}

// APIConfig contains dashboard API configuration
type APIConfig struct {
	Port             int
	DashboardBaseURL string
}

// TelegramConfig contains Telegram channel configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// FeishuConfig contains Feishu channel configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
}

// WebhookConfig contains generic webhook channel configuration
type WebhookConfig struct {
	URL string
}

// OpenAIConfig contains triage client configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	port := envInt("API_PORT", 8090)

	dashboardBase := os.Getenv("DASHBOARD_BASE_URL")
	if dashboardBase == "" {
		dashboardBase = fmt.Sprintf("http://127.0.0.1:%d", port)
	}

	ethosBase := os.Getenv("ETHOS_API_BASE")
	if ethosBase == "" {
		ethosBase = "https://api.ethos.network"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/vouchguard.db"
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode != "development" {
		logMode = "production"
	}

	return &Config{
		Ethos: EthosConfig{
			BaseURL:      ethosBase,
			SessionToken: os.Getenv("ETHOS_SESSION_TOKEN"),
			OperatorKey:  os.Getenv("ETHOS_OPERATOR_KEY"),
		},
		Monitor: MonitorConfig{
			IntervalMinutes:    envInt("MONITOR_INTERVAL_MINUTES", 30),
			WarmupSeconds:      envInt("WARMUP_DELAY_SECONDS", 10),
			AlertRetentionDays: envInt("ALERT_RETENTION_DAYS", 7),
		},
		Defense: DefenseConfig{
			AutoEnabled: envBool("AUTO_DEFENSE_ENABLED", true),
			AutoScore:   envInt("AUTO_DEFENSE_SCORE", 3),
		},
		Store: StoreConfig{
			DBPath:      dbPath,
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		API: APIConfig{
			Port:             port,
			DashboardBaseURL: dashboardBase,
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
			ChatID:    os.Getenv("FEISHU_CHAT_ID"),
		},
		Webhook: WebhookConfig{
			URL: os.Getenv("ALERT_WEBHOOK_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		LogMode: logMode,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ethos.OperatorKey == "" {
		return &ConfigError{Field: "ETHOS_OPERATOR_KEY", Message: "required"}
	}
	if c.Monitor.IntervalMinutes < 1 {
		return &ConfigError{Field: "MONITOR_INTERVAL_MINUTES", Message: "must be at least 1"}
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return &ConfigError{Field: "TELEGRAM_CHAT_ID", Message: "required when TELEGRAM_BOT_TOKEN is set"}
	}
	if c.Feishu.AppID != "" && (c.Feishu.AppSecret == "" || c.Feishu.ChatID == "") {
		return &ConfigError{Field: "FEISHU_APP_SECRET/FEISHU_CHAT_ID", Message: "required when FEISHU_APP_ID is set"}
	}
	return nil
}

// HasAlertChannel reports whether at least one notification channel is
// configured. Running without one is legal; the pipeline still records.
func (c *Config) HasAlertChannel() bool {
	return c.Telegram.BotToken != "" || c.Feishu.AppID != "" || c.Webhook.URL != ""
}

// Interval returns the cycle interval as a duration
func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// WarmupDelay returns the boot warm-up delay as a duration
func (c *MonitorConfig) WarmupDelay() time.Duration {
	return time.Duration(c.WarmupSeconds) * time.Second
}

// ToMonitorConfig converts to the ingestion engine configuration
func (c *Config) ToMonitorConfig() usecase.MonitorConfig {
	mc := usecase.DefaultMonitorConfig()
	mc.OperatorKey = c.Ethos.OperatorKey
	mc.AutoDefense = c.Defense.AutoEnabled
	mc.AutoDefenseScore = c.Defense.AutoScore
	mc.DashboardBaseURL = c.API.DashboardBaseURL
	mc.AlertRetention = time.Duration(c.Monitor.AlertRetentionDays) * 24 * time.Hour
	return mc
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envInt(name string, def int) int {
	if val := os.Getenv(name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(name string, def bool) bool {
	if val := os.Getenv(name); val != "" {
		return val == "true" || val == "1"
	}
	return def
}
