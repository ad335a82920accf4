package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LogLevel              string
	LogFormat             string
	LogOutput             string
	IdempotencyTTLSeconds int
	DBMaxOpenConns        int
	DBMaxIdleConns        int
	MigrationsPath        string
	LowStockLimit         int
}

var defaults = map[string]any{
	"port":                     "8080",
	"allowed_origin":           "http://127.0.0.1:3000",
	"redis_db":                 0,
	"access_token_ttl_minutes": 480,
	"log_level":                "info",
	"log_format":               "json",
	"log_output":               "stdout",
	"idempotency_ttl_seconds":  600,
	"db_max_open_conns":        30,
	"db_max_idle_conns":        8,
	"low_stock_limit":          50,
}

// Load reads config.yaml from the working directory or /etc/posledger when
// present, then lets environment variables override it. AUTH_SECRET and
// MANAGER_PIN have no defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/posledger")
	return load(v)
}

// LoadFile is Load with an explicit config file.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		Port:                  strings.TrimSpace(v.GetString("port")),
		AllowedOrigin:         strings.TrimSpace(v.GetString("allowed_origin")),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: positive(v.GetInt("access_token_ttl_minutes"), 480),
		ManagerPIN:            strings.TrimSpace(v.GetString("manager_pin")),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		LogOutput:             v.GetString("log_output"),
		IdempotencyTTLSeconds: positive(v.GetInt("idempotency_ttl_seconds"), 600),
		DBMaxOpenConns:        positive(v.GetInt("db_max_open_conns"), 30),
		DBMaxIdleConns:        positive(v.GetInt("db_max_idle_conns"), 8),
		MigrationsPath:        strings.TrimSpace(v.GetString("migrations_path")),
		LowStockLimit:         positive(v.GetInt("low_stock_limit"), 50),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func positive(value int, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}
