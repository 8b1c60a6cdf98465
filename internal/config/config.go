// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/ioms/backend/internal/outage"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Outage       OutageConfig       `yaml:"outage"`
	Jobs         JobsConfig         `yaml:"jobs"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Notification NotificationConfig `yaml:"notification"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Logging      LoggingConfig      `yaml:"logging"`
	// EncryptionKey protects per-company channel secrets at rest.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port        int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"30s"`
	// WriteTimeout also bounds websocket connections; 0 leaves them open.
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"0s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"50"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"100"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host         string        `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         int           `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User         string        `yaml:"user" env:"DB_USER" env-default:"ioms"`
	Password     string        `yaml:"password" env:"DB_PASSWORD"`
	Name         string        `yaml:"name" env:"DB_NAME" env-default:"ioms"`
	SSLMode      string        `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	MaxLifetime  time.Duration `yaml:"max_lifetime" env:"DB_MAX_LIFETIME" env-default:"5m"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenExpiry time.Duration `yaml:"token_expiry" env:"JWT_EXPIRY" env-default:"24h"`
}

// OutageConfig holds lifecycle settings.
type OutageConfig struct {
	// ConflictPolicy is the default for companies without their own setting.
	ConflictPolicy string        `yaml:"conflict_policy" env:"OUTAGE_CONFLICT_POLICY" env-default:"advisory"`
	ReminderLead   time.Duration `yaml:"reminder_lead" env:"OUTAGE_REMINDER_LEAD" env-default:"1h"`
}

// JobsConfig holds background job settings. Schedules have a seconds field.
type JobsConfig struct {
	Enabled               bool          `yaml:"enabled" env:"JOBS_ENABLED" env-default:"true"`
	StatusAdvanceSchedule string        `yaml:"status_advance" env:"JOB_STATUS_ADVANCE" env-default:"0 * * * * *"`
	RemindersSchedule     string        `yaml:"reminders" env:"JOB_REMINDERS" env-default:"0 */15 * * * *"`
	ReportArchiveSchedule string        `yaml:"report_archive" env:"JOB_REPORT_ARCHIVE" env-default:"0 30 2 * * *"`
	ArchiveHorizon        time.Duration `yaml:"archive_horizon" env:"JOB_ARCHIVE_HORIZON" env-default:"720h"`
	Timeout               time.Duration `yaml:"timeout" env:"JOB_TIMEOUT" env-default:"30m"`
}

// RedisConfig enables the realtime relay when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url" env:"REDIS_URL"`
	Channel string `yaml:"channel" env:"REDIS_REALTIME_CHANNEL" env-default:"ioms:realtime"`
}

// KafkaConfig enables the lifecycle event log when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"ioms.outage-events"`
}

// TelegramConfig enables the Telegram channel when BotToken is set.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	SlackWebhookURL string        `yaml:"slack_webhook_url" env:"NOTIFICATION_SLACK_WEBHOOK"`
	EmailSMTPHost   string        `yaml:"smtp_host" env:"NOTIFICATION_EMAIL_SMTP_HOST"`
	EmailSMTPPort   int           `yaml:"smtp_port" env:"NOTIFICATION_EMAIL_SMTP_PORT" env-default:"587"`
	EmailFrom       string        `yaml:"email_from" env:"NOTIFICATION_EMAIL_FROM"`
	EmailPassword   string        `yaml:"email_password" env:"NOTIFICATION_EMAIL_PASSWORD"`
	EmailRecipients []string      `yaml:"email_recipients" env:"NOTIFICATION_EMAIL_RECIPIENTS" env-separator:","`
	WebhookURLs     []string      `yaml:"webhook_urls" env:"NOTIFICATION_WEBHOOK_URLS" env-separator:","`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"NOTIFICATION_DELIVERY_TIMEOUT" env-default:"30s"`
	RealtimeBuffer  int           `yaml:"realtime_buffer" env:"REALTIME_SESSION_BUFFER" env-default:"64"`
}

// ArchiveConfig enables S3 report archiving when Bucket is set.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket" env:"ARCHIVE_S3_BUCKET"`
	Region          string `yaml:"region" env:"ARCHIVE_S3_REGION" env-default:"us-east-1"`
	Prefix          string `yaml:"prefix" env:"ARCHIVE_S3_PREFIX" env-default:"reports"`
	Endpoint        string `yaml:"endpoint" env:"ARCHIVE_S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Load reads a .env file when present, then the YAML file named by
// CONFIG_PATH if set, then the environment. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}
	return LoadPath(os.Getenv("CONFIG_PATH"))
}

// LoadPath is Load without the .env step. An empty path reads only the environment.
func LoadPath(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Password == "" {
		errs = append(errs, fmt.Errorf("DB_PASSWORD is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}
	if c.EncryptionKey == "" {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port))
	}
	if _, ok := outage.ParsePolicy(c.Outage.ConflictPolicy); !ok {
		errs = append(errs, fmt.Errorf("OUTAGE_CONFLICT_POLICY must be advisory or blocking, got %q", c.Outage.ConflictPolicy))
	}
	if c.Outage.ReminderLead <= 0 {
		errs = append(errs, fmt.Errorf("OUTAGE_REMINDER_LEAD must be positive"))
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// ConflictPolicy returns the parsed default conflict policy.
func (c *Config) ConflictPolicy() outage.Policy {
	p, _ := outage.ParsePolicy(c.Outage.ConflictPolicy)
	return p
}

// NewLogger builds the process logger from the logging settings.
func (c LoggingConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	var h slog.Handler
	if strings.EqualFold(c.Format, "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
