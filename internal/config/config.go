// Package config defines the immutable-once-loaded settings record shared by
// every modsentry process entry point (telegram-bot, ai-worker, alertd, ingestd).
package config

import (
	"encoding/json"
	"strings"
	"sync"
)

// Config is the top-level settings record. Each service reads only the
// sub-structs it needs; unused sections are harmless zero values.
type Config struct {
	mu sync.RWMutex

	Telegram  TelegramConfig  `json:"telegram"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	LLM       LLMConfig       `json:"llm"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Alert     AlertConfig     `json:"alert"`
	LogLevel  string          `json:"log_level"`
}

// TelegramConfig configures the bot process.
type TelegramConfig struct {
	// Token is never persisted to disk; it is populated from TELEGRAM_BOT_TOKEN only.
	Token string `json:"-"`
	// WebhookURL and RunMode are loaded (WEBHOOK_URL, RUN_MODE) but not read by
	// the bot: internal/telegram always uses long polling, whatever RunMode says.
	WebhookURL string `json:"webhook_url"`
	RunMode    string `json:"run_mode"` // "poll" (default); "webhook" is accepted but has no effect
	Port       int    `json:"port"`

	// GroupWorkers is the size of the moderation worker pool draining the intake channel.
	GroupWorkers int `json:"group_workers"`
	// IntakeQueueCapacity is the bounded intake channel capacity; keep it at
	// 10000 or above so bursts are absorbed rather than dropped.
	IntakeQueueCapacity int `json:"intake_queue_capacity"`

	// RateLimitPerSecond bounds outbound Telegram API calls (deletes/sends) via golang.org/x/time/rate.
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	RateLimitBurst     int     `json:"rate_limit_burst"`
}

// DatabaseConfig configures the Postgres DAO.
type DatabaseConfig struct {
	PostgresDSN  string `json:"-"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// RedisConfig configures the stream bus.
type RedisConfig struct {
	URL                  string `json:"-"`
	TasksStream          string `json:"tasks_stream"`
	ResultsStream        string `json:"results_stream"`
	ConsumerGroup        string `json:"consumer_group"`
	DeletionStreamPrefix string `json:"deletion_stream_prefix"`
}

// LLMConfig configures the LM worker pool.
type LLMConfig struct {
	BaseURL       string `json:"base_url"`
	Model         string `json:"model"`
	APIKey        string `json:"-"`
	Workers       int    `json:"workers"`
	TimeoutS      int    `json:"timeout_s"`
	XReadCount    int64  `json:"xread_count"`
	ResultsMaxLen int64  `json:"results_maxlen"`
	HealthPort    int    `json:"health_port"`
}

// TelemetryConfig configures both the emitting side (shipper) and the ingest gateway.
type TelemetryConfig struct {
	ServiceName     string `json:"service_name"`
	IngestURL       string `json:"ingest_url"`
	ChannelCapacity int    `json:"channel_capacity"`
	BatchSize       int    `json:"batch_size"`
	FlushIntervalMS int    `json:"flush_interval_ms"`

	// GatewayPort and OpenSearchURL are only meaningful for the ingestd process.
	GatewayPort   int    `json:"gateway_port"`
	OpenSearchURL string `json:"opensearch_url"`

	// OTLPEndpoint enables real span export when set; otherwise spans go to a tracer provider with no exporter and are discarded.
	OTLPEndpoint string `json:"otlp_endpoint"`
}

// AlertConfig configures the alert daemon.
type AlertConfig struct {
	OpenSearchURL    string     `json:"opensearch_url"`
	IntervalSeconds  int        `json:"interval_seconds"`
	MinFreeGB        float64    `json:"min_free_gb"`
	MinFreePct       float64    `json:"min_free_pct"`
	LogIndexPattern  string     `json:"log_index_pattern"`
	ErrorThreshold   int        `json:"error_threshold"`
	WarningThreshold int        `json:"warning_threshold"`
	DetailsLimit     int        `json:"details_limit"`
	HealthPort       int        `json:"health_port"`
	SMTP             SMTPConfig `json:"smtp"`
}

// SMTPConfig configures the email notifier sink.
type SMTPConfig struct {
	Host     string              `json:"host"`
	Port     int                 `json:"port"`
	Username string              `json:"username"`
	Password string              `json:"-"`
	From     string              `json:"from"`
	To       FlexibleStringSlice `json:"to"`
}

// FlexibleStringSlice unmarshals from either a JSON array of strings or a
// single comma/semicolon-separated string, matching ALERT_EMAIL_TO's
// documented env-var shape.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = splitRecipients(s)
	return nil
}

// parseRecipients accepts the env-var shapes of a recipient list: a JSON
// array of strings or a comma/semicolon-separated string.
func parseRecipients(s string) FlexibleStringSlice {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			return arr
		}
	}
	return splitRecipients(s)
}

// splitRecipients accepts comma- or semicolon-separated recipient lists.
func splitRecipients(s string) FlexibleStringSlice {
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	parts := strings.Split(s, sep)
	out := make(FlexibleStringSlice, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot returns a copy of the config safe for a caller to read without
// racing a concurrent Replace. Fields are copied individually so the guard
// itself is never copied.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Telegram:  c.Telegram,
		Database:  c.Database,
		Redis:     c.Redis,
		LLM:       c.LLM,
		Telemetry: c.Telemetry,
		Alert:     c.Alert,
		LogLevel:  c.LogLevel,
	}
}

// Replace swaps c's fields with next's, used by the fsnotify hot-reload
// watcher installed by WatchAndReload.
func (c *Config) Replace(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Telegram = next.Telegram
	c.Database = next.Database
	c.Redis = next.Redis
	c.LLM = next.LLM
	c.Telemetry = next.Telemetry
	c.Alert = next.Alert
	c.LogLevel = next.LogLevel
}
