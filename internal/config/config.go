// Package config загружает настройки сервиса из переменных окружения (префикс BLOG_)
// и необязательного файла конфигурации.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
	StorageRemote   = "remote"

	KVMemory = "memory"
	KVRedis  = "redis"
)

type Config struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	LogLevel string `mapstructure:"log_level"`

	// Storage: in-memory, postgres или remote
	Storage     string `mapstructure:"storage"`
	DatabaseURL string `mapstructure:"database_url"`
	RemoteURL   string `mapstructure:"remote_url"`

	// KV: memory или redis. Хранит снимки in-memory хранилища и отозванные токены.
	KV            string `mapstructure:"kv"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Seed           bool          `mapstructure:"seed"`

	// Лимит записи: запросов в секунду и всплеск на один IP
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

const devSecret = "dev-secret-change-me-please"

func defaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage", StorageInMemory)
	v.SetDefault("database_url", "")
	v.SetDefault("remote_url", "")
	v.SetDefault("kv", KVMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_secret", devSecret)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("seed", true)
	v.SetDefault("rate_limit", 5)
	v.SetDefault("rate_burst", 20)
}

// Load читает конфигурацию. file может быть пустым.
func Load(file string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("BLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageInMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("BLOG_DATABASE_URL must be set for postgres storage")
		}
	case StorageRemote:
		if c.RemoteURL == "" {
			return errors.New("BLOG_REMOTE_URL must be set for remote storage")
		}
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}

	switch c.KV {
	case KVMemory, KVRedis:
	default:
		return fmt.Errorf("unknown kv backend %q", c.KV)
	}

	if c.Env == "production" && c.JWTSecret == devSecret {
		return errors.New("BLOG_JWT_SECRET must be set in production")
	}
	return nil
}

// Addr возвращает адрес, который слушает сервер (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *Config) Dev() bool {
	return c.Env == "development"
}
