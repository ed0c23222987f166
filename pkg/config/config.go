package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// CORSOrigins is a comma separated allow list; empty allows any origin.
	CORSOrigins    string  `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	// PublicURL is the externally reachable base of this service; callback and
	// instruction links are built from it.
	PublicURL string `mapstructure:"PUBLIC_URL" validate:"required,url"`

	PipelineURL     string        `mapstructure:"PIPELINE_URL" validate:"required,url"`
	PipelineToken   string        `mapstructure:"PIPELINE_TOKEN"`
	PipelineTimeout time.Duration `mapstructure:"PIPELINE_TIMEOUT" validate:"required"`

	ReadinessInterval time.Duration `mapstructure:"READINESS_INTERVAL" validate:"required"`
	ReadinessWait     time.Duration `mapstructure:"READINESS_WAIT" validate:"required"`
	NotifyTimeout     time.Duration `mapstructure:"NOTIFY_TIMEOUT" validate:"required"`
	CertsAPIScheme    string        `mapstructure:"CERTS_API_SCHEME" validate:"required,oneof=http https"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT" validate:"gte=0,lte=65535"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM" validate:"omitempty,email"`

	InstructionsURL string `mapstructure:"INSTRUCTIONS_URL"`
	TakorttiURL     string `mapstructure:"TAKORTTI_URL"`
	DocTemplateURL  string `mapstructure:"DOCTEMPLATE_URL"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var durationKeys = []string{
	"SHUTDOWN_TIMEOUT",
	"PIPELINE_TIMEOUT",
	"READINESS_INTERVAL",
	"READINESS_WAIT",
	"NOTIFY_TIMEOUT",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("PIPELINE_TIMEOUT", "30s")
	v.SetDefault("READINESS_INTERVAL", "30s")
	v.SetDefault("READINESS_WAIT", "10s")
	v.SetDefault("NOTIFY_TIMEOUT", "24h")
	v.SetDefault("CERTS_API_SCHEME", "https")
	v.SetDefault("SMTP_PORT", 587)

	// Optional config file
	_ = v.ReadInConfig()

	// Bind env without prefix for convenience
	keys := []string{
		"APP_ENV",
		"HTTP_ADDR",
		"SHUTDOWN_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"ASYNQ_CONCURRENCY",
		"GOMAXPROCS",
		"JWT_SECRET",
		"CORS_ORIGINS",
		"RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST",
		"PUBLIC_URL",
		"PIPELINE_URL",
		"PIPELINE_TOKEN",
		"PIPELINE_TIMEOUT",
		"READINESS_INTERVAL",
		"READINESS_WAIT",
		"NOTIFY_TIMEOUT",
		"CERTS_API_SCHEME",
		"SMTP_HOST",
		"SMTP_PORT",
		"SMTP_USERNAME",
		"SMTP_PASSWORD",
		"MAIL_FROM",
		"INSTRUCTIONS_URL",
		"TAKORTTI_URL",
		"DOCTEMPLATE_URL",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Parse duration types that may come as string
	for _, key := range durationKeys {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		switch key {
		case "SHUTDOWN_TIMEOUT":
			c.ShutdownTimeout = d
		case "PIPELINE_TIMEOUT":
			c.PipelineTimeout = d
		case "READINESS_INTERVAL":
			c.ReadinessInterval = d
		case "READINESS_WAIT":
			c.ReadinessWait = d
		case "NOTIFY_TIMEOUT":
			c.NotifyTimeout = d
		}
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// MailEnabled reports whether enough SMTP settings are present to send mail.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.MailFrom != ""
}

// AllowedOrigins splits CORSOrigins into a list, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
