package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken       string         `yaml:"discord_token" validate:"required"`
	DatabasePath       string         `yaml:"database_path" validate:"required"`
	LogLevel           string         `yaml:"log_level" validate:"oneof=debug info warn error"`
	SecurityLogChannel string         `yaml:"security_log_channel"`
	RetentionDays      int            `yaml:"retention_days" validate:"min=1"`
	Sensitivity        string         `yaml:"sensitivity" validate:"oneof=low medium high"`
	Mode               string         `yaml:"mode" validate:"oneof=normal audit"`
	Health             HealthConfig   `yaml:"health"`
	Window             WindowConfig   `yaml:"window"`
	Rules              RulesConfig    `yaml:"rules"`
	Decision           DecisionConfig `yaml:"decision"`
	Executor           ExecutorConfig `yaml:"executor"`
	Pipeline           PipelineConfig `yaml:"pipeline"`
	Alert              AlertConfig    `yaml:"alert"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required"`
}

type WindowConfig struct {
	MaxMessages   int `yaml:"max_messages" validate:"min=1"`
	MaxAgeMinutes int `yaml:"max_age_minutes" validate:"min=1"`
}

type RulesConfig struct {
	Rate      RateConfig      `yaml:"rate"`
	Duplicate DuplicateConfig `yaml:"duplicate"`
	Link      LinkConfig      `yaml:"link"`
	Account   AccountConfig   `yaml:"account"`
}

type RateConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds" validate:"min=1"`
	Threshold     int  `yaml:"threshold" validate:"min=1"`
}

type DuplicateConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	MinRun    int     `yaml:"min_run" validate:"min=2"`
	Depth     int     `yaml:"depth" validate:"min=1"`
}

type LinkConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RiskThreshold float64  `yaml:"risk_threshold" validate:"gt=0,lte=1"`
	DenyDomains   []string `yaml:"deny_domains"`
	SafeDomains   []string `yaml:"safe_domains"`
	Shorteners    []string `yaml:"shorteners"`
	ScamKeywords  []string `yaml:"scam_keywords"`
}

type AccountConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxAgeDays        int     `yaml:"max_age_days" validate:"min=1"`
	MaxJoinGapMinutes int     `yaml:"max_join_gap_minutes" validate:"min=1"`
	Multiplier        float64 `yaml:"multiplier" validate:"gte=1"`
}

type DecisionConfig struct {
	WarnThreshold         float64 `yaml:"warn_threshold" validate:"gt=0,lte=1"`
	MuteThreshold         float64 `yaml:"mute_threshold" validate:"gt=0,lte=1"`
	RateWeight            float64 `yaml:"rate_weight" validate:"gt=0"`
	DuplicateWeight       float64 `yaml:"duplicate_weight" validate:"gt=0"`
	LinkWeight            float64 `yaml:"link_weight" validate:"gt=0"`
	BaseMuteMinutes       int     `yaml:"base_mute_minutes" validate:"min=1"`
	EscalationWindowHours int     `yaml:"escalation_window_hours" validate:"min=1"`
	MaxMuteHours          int     `yaml:"max_mute_hours" validate:"min=1"`
	DeleteOnMute          bool    `yaml:"delete_on_mute"`
}

type ExecutorConfig struct {
	MaxRetries             int     `yaml:"max_retries" validate:"min=0"`
	BackoffBaseMS          int     `yaml:"backoff_base_ms" validate:"min=1"`
	BackoffMaxMS           int     `yaml:"backoff_max_ms" validate:"min=1"`
	BackoffMultiplier      float64 `yaml:"backoff_multiplier" validate:"gte=1"`
	JitterFactor           float64 `yaml:"jitter_factor" validate:"gte=0,lt=1"`
	BreakerThreshold       int     `yaml:"breaker_threshold" validate:"min=1"`
	BreakerCooldownSeconds int     `yaml:"breaker_cooldown_seconds" validate:"min=1"`
	RequestTimeoutSeconds  int     `yaml:"request_timeout_seconds" validate:"min=1"`
	GlobalRate             float64 `yaml:"global_rate" validate:"gt=0"`
	GlobalBurst            int     `yaml:"global_burst" validate:"min=1"`
}

type PipelineConfig struct {
	Workers   int `yaml:"workers" validate:"min=1"`
	QueueSize int `yaml:"queue_size" validate:"min=1"`
}

type AlertConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:       "/data/warden.db",
		LogLevel:           "info",
		SecurityLogChannel: "",
		RetentionDays:      30,
		Sensitivity:        "medium",
		Mode:               "normal",
		Health:             HealthConfig{Enabled: false, Addr: ":8080"},
		Window:             WindowConfig{MaxMessages: 50, MaxAgeMinutes: 10},
		Rules: RulesConfig{
			Rate:      RateConfig{Enabled: true, WindowSeconds: 10, Threshold: 5},
			Duplicate: DuplicateConfig{Enabled: true, Threshold: 0.70, MinRun: 2, Depth: 10},
			Link: LinkConfig{
				Enabled:       true,
				RiskThreshold: 0.50,
				DenyDomains: []string{
					"discord.gift",
					"discordgift.ru",
					"discord-nitro.com",
					"nitro-discord.com",
					"free-nitro.xyz",
					"steamcommunlty.com",
				},
				SafeDomains: []string{
					"discord.com",
					"discordapp.com",
					"github.com",
					"youtube.com",
					"twitch.tv",
				},
				Shorteners:   []string{"bit.ly", "tinyurl.com", "goo.gl", "t.co", "is.gd"},
				ScamKeywords: []string{"nitro", "gift", "free", "claim", "airdrop", "giveaway"},
			},
			Account: AccountConfig{Enabled: true, MaxAgeDays: 7, MaxJoinGapMinutes: 10, Multiplier: 1.5},
		},
		Decision: DecisionConfig{
			WarnThreshold:         0.45,
			MuteThreshold:         0.70,
			RateWeight:            1.0,
			DuplicateWeight:       1.0,
			LinkWeight:            0.75,
			BaseMuteMinutes:       360,
			EscalationWindowHours: 24,
			MaxMuteHours:          168,
			DeleteOnMute:          true,
		},
		Executor: ExecutorConfig{
			MaxRetries:             3,
			BackoffBaseMS:          1000,
			BackoffMaxMS:           32000,
			BackoffMultiplier:      2.0,
			JitterFactor:           0.25,
			BreakerThreshold:       5,
			BreakerCooldownSeconds: 60,
			RequestTimeoutSeconds:  10,
			GlobalRate:             50,
			GlobalBurst:            10,
		},
		Pipeline: PipelineConfig{Workers: 4, QueueSize: 256},
		Alert:    AlertConfig{Enabled: false, WebhookURL: ""},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.Mode = normalizeMode(cfg.Mode)
	cfg.Sensitivity = NormalizeSensitivity(cfg.Sensitivity)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.SecurityLogChannel = envString("SECURITY_LOG_CHANNEL", cfg.SecurityLogChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Sensitivity = envString("SENSITIVITY", cfg.Sensitivity)
	cfg.Mode = envString("MODE", cfg.Mode)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Window.MaxMessages = envInt("WINDOW_MAX_MESSAGES", cfg.Window.MaxMessages)
	cfg.Window.MaxAgeMinutes = envInt("WINDOW_MAX_AGE_MINUTES", cfg.Window.MaxAgeMinutes)
	cfg.Rules.Rate.Threshold = envInt("RATE_THRESHOLD", cfg.Rules.Rate.Threshold)
	cfg.Rules.Rate.WindowSeconds = envInt("RATE_WINDOW_SECONDS", cfg.Rules.Rate.WindowSeconds)
	cfg.Rules.Duplicate.Threshold = envFloat("DUPLICATE_THRESHOLD", cfg.Rules.Duplicate.Threshold)
	cfg.Rules.Link.RiskThreshold = envFloat("LINK_RISK_THRESHOLD", cfg.Rules.Link.RiskThreshold)
	cfg.Decision.BaseMuteMinutes = envInt("BASE_MUTE_MINUTES", cfg.Decision.BaseMuteMinutes)
	cfg.Decision.EscalationWindowHours = envInt("ESCALATION_WINDOW_HOURS", cfg.Decision.EscalationWindowHours)
	cfg.Decision.MaxMuteHours = envInt("MAX_MUTE_HOURS", cfg.Decision.MaxMuteHours)
	cfg.Executor.MaxRetries = envInt("EXECUTOR_MAX_RETRIES", cfg.Executor.MaxRetries)
	cfg.Executor.BreakerThreshold = envInt("BREAKER_THRESHOLD", cfg.Executor.BreakerThreshold)
	cfg.Executor.BreakerCooldownSeconds = envInt("BREAKER_COOLDOWN_SECONDS", cfg.Executor.BreakerCooldownSeconds)
	cfg.Pipeline.Workers = envInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.QueueSize = envInt("PIPELINE_QUEUE_SIZE", cfg.Pipeline.QueueSize)
	cfg.Alert.Enabled = envBool("ALERT_ENABLED", cfg.Alert.Enabled)
	cfg.Alert.WebhookURL = envString("ALERT_WEBHOOK_URL", cfg.Alert.WebhookURL)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeMode(value string) string {
	switch strings.ToLower(value) {
	case "audit":
		return "audit"
	default:
		return "normal"
	}
}

func NormalizeSensitivity(value string) string {
	switch strings.ToLower(value) {
	case "low", "medium", "high":
		return strings.ToLower(value)
	default:
		return "medium"
	}
}

func ValidSensitivity(value string) bool {
	switch strings.ToLower(value) {
	case "low", "medium", "high":
		return true
	default:
		return false
	}
}

func (w WindowConfig) MaxAge() time.Duration {
	return time.Duration(w.MaxAgeMinutes) * time.Minute
}
