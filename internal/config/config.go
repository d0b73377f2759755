package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/studytrack/backend/internal/recommend"
)

type Config struct {
	Server         ServerConfig     `mapstructure:"server"`
	Database       DatabaseConfig   `mapstructure:"database"`
	JWT            JWTConfig        `mapstructure:"jwt"`
	Redis          RedisConfig      `mapstructure:"redis"`
	Log            LogConfig        `mapstructure:"log"`
	Recommendation recommend.Config `mapstructure:"recommendation"`
	Coach          CoachConfig      `mapstructure:"coach"`
	Exam           ExamConfig       `mapstructure:"exam"`
	CORS           CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN is the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL is the same connection as a postgres:// URL, used by migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

func (j JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpireHours) * time.Hour
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CoachConfig struct {
	// "anthropic" or "mock".
	Provider  string `mapstructure:"provider"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type ExamConfig struct {
	// Default exam date (YYYY-MM-DD) used when a request carries no days_left.
	Date string `mapstructure:"date"`
}

func (e ExamConfig) Time() (time.Time, bool) {
	if e.Date == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", e.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "studytrack")
	v.SetDefault("database.password", "studytrack")
	v.SetDefault("database.name", "studytrack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open", 25)
	v.SetDefault("database.max_idle", 5)

	v.SetDefault("jwt.secret", "studytrack-dev-signing-key")
	v.SetDefault("jwt.expire_hours", 72)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.file", "logs/studytrack.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	rec := recommend.DefaultConfig()
	v.SetDefault("recommendation.weights.gate", rec.Weights.Gate)
	v.SetDefault("recommendation.weights.progress", rec.Weights.Progress)
	v.SetDefault("recommendation.weights.foundation", rec.Weights.Foundation)
	v.SetDefault("recommendation.weights.time", rec.Weights.Time)
	v.SetDefault("recommendation.revision_threshold", rec.RevisionThreshold)
	v.SetDefault("recommendation.max_subjects_per_category", rec.MaxSubjectsPerCategory)

	v.SetDefault("coach.provider", "mock")
	v.SetDefault("coach.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("coach.max_tokens", 1024)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("STUDYTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Coach
	v.BindEnv("coach.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("coach.model", "ANTHROPIC_MODEL")
}

// Loader owns the viper instance so the same file can be watched later.
type Loader struct {
	v *viper.Viper
}

// NewLoader searches for config.yaml in path, ./configs and the working
// directory. A missing file is not an error.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)
	return &Loader{v: v}
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// File is the config file in use, empty when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read config whenever the file is
// written. Reloads that fail validation are reported to onError and
// otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Recommendation.MaxSubjectsPerCategory < 0 {
		return fmt.Errorf("recommendation.max_subjects_per_category must not be negative")
	}
	switch c.Coach.Provider {
	case "mock", "anthropic":
	default:
		return fmt.Errorf("unknown coach provider %q", c.Coach.Provider)
	}
	return nil
}

// Load is the one-shot form used by tools that do not watch the file.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
