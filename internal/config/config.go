// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Shop      ShopConfig      `mapstructure:"shop"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	TopUp     TopUpConfig     `mapstructure:"topup"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds the admin subscriber list. Decisions on pending orders
// and payments may only come from these ids, and operational alerts fan out
// to all of them.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds the chat whitelist. An empty list opens the bot to
// everyone.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// ShopConfig holds purchase engine tuning.
type ShopConfig struct {
	LowStockThreshold int64         `mapstructure:"low_stock_threshold"`
	HistoryRetention  time.Duration `mapstructure:"history_retention"`
	Maintenance       bool          `mapstructure:"maintenance"`
}

// ReferralConfig holds the referral bonus program settings.
type ReferralConfig struct {
	Enabled     bool  `mapstructure:"enabled"`
	Bonus       int64 `mapstructure:"bonus"`
	MinPurchase int64 `mapstructure:"min_purchase"`
}

// TopUpConfig holds add-funds flow settings.
type TopUpConfig struct {
	MinAmount     int64 `mapstructure:"min_amount"`
	ProofRequired bool  `mapstructure:"proof_required"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, REFERRAL_BONUS.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shopbot")
	v.SetDefault("database.name", "shopbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("shop.low_stock_threshold", 3)
	v.SetDefault("shop.history_retention", "24h")
	v.SetDefault("shop.maintenance", false)

	v.SetDefault("referral.enabled", true)
	v.SetDefault("referral.bonus", 20)
	v.SetDefault("referral.min_purchase", 1000)

	v.SetDefault("topup.min_amount", 1)
	v.SetDefault("topup.proof_required", true)
}

// IsChatAllowed checks if a chat ID is in the whitelist. An empty
// whitelist allows every chat.
func (c *Config) IsChatAllowed(chatID int64) bool {
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
