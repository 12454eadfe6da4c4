package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Default returns the hardcoded defaults used when no config file or
// environment override is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Telegram: TelegramConfig{
			RunMode:             "poll",
			Port:                8080,
			GroupWorkers:        4,
			IntakeQueueCapacity: 10000,
			RateLimitPerSecond:  25,
			RateLimitBurst:      10,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			TasksStream:          "ai:tasks",
			ResultsStream:        "ai:results",
			ConsumerGroup:        "ai-workers",
			DeletionStreamPrefix: "deleted_messages",
		},
		LLM: LLMConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "llama3",
			Workers:    4,
			TimeoutS:   30,
			XReadCount: 5,
			HealthPort: 8082,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "modsentry",
			ChannelCapacity: 10000,
			BatchSize:       200,
			FlushIntervalMS: 1000,
			GatewayPort:     8090,
		},
		Alert: AlertConfig{
			IntervalSeconds:  60,
			MinFreeGB:        15.0,
			MinFreePct:       12.0,
			LogIndexPattern:  "logs-*",
			ErrorThreshold:   1,
			WarningThreshold: 5,
			DetailsLimit:     5,
			HealthPort:       8083,
		},
	}
}

// Load reads an optional JSON5 config file at path, falling back to Default()
// if the file does not exist, then overlays environment variables in both
// cases so secrets and deploy-time overrides always win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envStr(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	envStr(&cfg.Telegram.WebhookURL, "WEBHOOK_URL")
	envStr(&cfg.Telegram.RunMode, "RUN_MODE")
	envInt(&cfg.Telegram.Port, "PORT")
	envInt(&cfg.Telegram.GroupWorkers, "GROUP_WORKERS")

	envStr(&cfg.Database.PostgresDSN, "POSTGRES_DSN")
	envIntFromStr(&cfg.Database.MaxOpenConns, "POSTGRES_MAX_OPEN_CONNS")

	envStr(&cfg.Redis.URL, "REDIS_URL")
	envStr(&cfg.Redis.TasksStream, "TASKS_STREAM")
	envStr(&cfg.Redis.ResultsStream, "RESULTS_STREAM")
	envStr(&cfg.Redis.ConsumerGroup, "CONSUMER_GROUP")

	envStr(&cfg.LLM.BaseURL, "AI_BASE_URL")
	envStr(&cfg.LLM.Model, "AI_MODEL")
	envStr(&cfg.LLM.APIKey, "AI_API_KEY")
	envInt(&cfg.LLM.Workers, "AI_WORKERS")
	envInt(&cfg.LLM.TimeoutS, "AI_TIMEOUT_S")
	envInt64(&cfg.LLM.XReadCount, "AI_XREAD_COUNT")
	envInt64(&cfg.LLM.ResultsMaxLen, "AI_RESULTS_MAXLEN")

	envStr(&cfg.Telemetry.IngestURL, "OS_INGEST_URL")
	envStr(&cfg.Telemetry.OpenSearchURL, "OPENSEARCH_URL")

	envStr(&cfg.Alert.OpenSearchURL, "OPENSEARCH_URL")
	envIntFromStr(&cfg.Alert.IntervalSeconds, "ALERT_INTERVAL_SEC")
	envFloat(&cfg.Alert.MinFreeGB, "MIN_FREE_GB")
	envFloat(&cfg.Alert.MinFreePct, "MIN_FREE_PCT")
	envStr(&cfg.Alert.LogIndexPattern, "LOG_INDEX_PATTERN")
	envIntFromStr(&cfg.Alert.ErrorThreshold, "ERROR_THRESHOLD")
	envIntFromStr(&cfg.Alert.WarningThreshold, "WARNING_THRESHOLD")
	envIntFromStr(&cfg.Alert.DetailsLimit, "ALERT_DETAILS_LIMIT")

	envStr(&cfg.Alert.SMTP.Host, "SMTP_HOST")
	envIntFromStr(&cfg.Alert.SMTP.Port, "SMTP_PORT")
	envStr(&cfg.Alert.SMTP.Username, "SMTP_USERNAME")
	envStr(&cfg.Alert.SMTP.Password, "SMTP_PASSWORD")
	envStr(&cfg.Alert.SMTP.From, "SMTP_FROM")
	if v := os.Getenv("ALERT_EMAIL_TO"); v != "" {
		cfg.Alert.SMTP.To = parseRecipients(v)
	}

	envStr(&cfg.LogLevel, "LOG_LEVEL")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envIntFromStr is identical to envInt; kept as a distinct name because some
// env vars (ALERT_INTERVAL_SEC, thresholds) are plain numeric strings and
// are easy to confuse with duration values.
func envIntFromStr(dst *int, key string) { envInt(dst, key) }

func envInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Save persists cfg to path as indented JSON. Secret fields tagged json:"-"
// are never written.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a content hash of the non-secret config, useful for detecting
// whether a hot-reloaded file actually changed before triggering a reload.
func Hash(cfg *Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WatchAndReload watches path for writes and creates, calls Load, and applies
// the result with current.Replace whenever the loaded config's hash changes. It runs until stop is closed. Errors
// reading/parsing a changed file are logged and the previous config is kept.
func WatchAndReload(path string, current *Config, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config %s: %w", path, err)
	}

	lastHash, _ := Hash(current)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, err := Load(path)
				if err != nil {
					slog.Warn("config hot-reload failed", "error", err)
					continue
				}
				h, _ := Hash(next)
				if h == lastHash {
					continue
				}
				lastHash = h
				current.Replace(next)
				slog.Info("config hot-reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
