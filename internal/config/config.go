package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type EngineConfig struct {
	// Timezone decides where calendar days start for risk and dedup.
	Timezone  string `mapstructure:"timezone"`
	SweepCron string `mapstructure:"sweep_cron"`
}

type NotificationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Lease        time.Duration `mapstructure:"lease"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	LogChannel   bool          `mapstructure:"log_channel"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	// APIEndpoint overrides the Bot API URL template, e.g. for a local Bot API server.
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	ServerPort   string             `mapstructure:"server_port"`
	JWTSecret    string             `mapstructure:"jwt_secret"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Notification NotificationConfig `mapstructure:"notification"`
	Email        EmailConfig        `mapstructure:"email"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Temporal     TemporalConfig     `mapstructure:"temporal"`
	Log          LogConfig          `mapstructure:"log"`
}

// Location resolves Engine.Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Engine.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// Load reads config.yaml from the current directory or ./config, with
// TASKWATCH_* environment variables taking precedence. A missing file is
// fine; everything has a default except the JWT secret when the HTTP API
// is served.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TASKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.Notification.BatchSize <= 0 {
		config.Notification.BatchSize = 50
	}
	if config.Notification.MaxAttempts <= 0 {
		config.Notification.MaxAttempts = 5
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if _, err := time.LoadLocation(config.Engine.Timezone); err != nil {
		return nil, fmt.Errorf("invalid engine.timezone %q: %w", config.Engine.Timezone, err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "postgres://localhost:5432/taskwatch?sslmode=disable")
	v.SetDefault("server_port", "8080")
	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.sweep_cron", "0 6 * * *")
	v.SetDefault("notification.poll_interval", 15*time.Second)
	v.SetDefault("notification.batch_size", 50)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.lease", 2*time.Minute)
	v.SetDefault("notification.retry_backoff", 30*time.Second)
	v.SetDefault("notification.log_channel", true)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "TASKWATCH_SWEEP")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	// Registered so AutomaticEnv can populate them without a file.
	v.SetDefault("jwt_secret", "")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.from", "")
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_endpoint", "")
	v.SetDefault("temporal.enabled", false)
}
