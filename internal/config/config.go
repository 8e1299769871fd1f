// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bot       BotConfig       `mapstructure:"bot"`
	Game      GameConfig      `mapstructure:"game"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	AutoStart AutoStartConfig `mapstructure:"autostart"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// StoreConfig selects the persistence backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
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

// RedisConfig holds the Redis event publisher configuration.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// BotConfig holds Telegram bot configuration.
// The bot is disabled when Token is empty.
type BotConfig struct {
	Token          string  `mapstructure:"token"`
	AnnounceChatID int64   `mapstructure:"announce_chat_id"`
	AllowedChats   []int64 `mapstructure:"allowed_chats"`
	Admins         []int64 `mapstructure:"admins"`
}

// GameConfig holds the rules applied to newly created sessions.
type GameConfig struct {
	EntryFee       int64         `mapstructure:"entry_fee"`
	Pattern        string        `mapstructure:"pattern"`
	InitialBalance int64         `mapstructure:"initial_balance"`
	CallInterval   time.Duration `mapstructure:"call_interval"`
	CardMin        int           `mapstructure:"card_min"`
	CardMax        int           `mapstructure:"card_max"`
	OneCardPerUser bool          `mapstructure:"one_card_per_user"`
}

// NotifyConfig holds event dispatcher configuration.
type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// AutoStartConfig holds the periodic auto-start job configuration.
type AutoStartConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MinPlayers int           `mapstructure:"min_players"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Addr returns the HTTP listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// IsAdmin checks if a user ID is in the admin list.
func (b *BotConfig) IsAdmin(userID int64) bool {
	for _, id := range b.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a group chat ID is in the whitelist.
func (b *BotConfig) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(b.AllowedChats) == 0 {
		return true
	}
	for _, id := range b.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory. A .env file in the
// working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	// Missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_HOST, GAME_ENTRY_FEE, BOT_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would leave the engine unusable.
func (c *Config) Validate() error {
	if c.Game.EntryFee <= 0 {
		return fmt.Errorf("game.entry_fee must be positive, got %d", c.Game.EntryFee)
	}
	if c.Game.InitialBalance < 0 {
		return fmt.Errorf("game.initial_balance must not be negative, got %d", c.Game.InitialBalance)
	}
	if c.Game.CardMin > c.Game.CardMax {
		return fmt.Errorf("game.card_min %d is greater than game.card_max %d", c.Game.CardMin, c.Game.CardMax)
	}
	if c.Game.CallInterval <= 0 {
		return fmt.Errorf("game.call_interval must be positive, got %s", c.Game.CallInterval)
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")

	v.SetDefault("store.driver", "postgres")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bingo")
	v.SetDefault("database.name", "bingo")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "bingo:session:")

	// Game defaults
	v.SetDefault("game.entry_fee", 10)
	v.SetDefault("game.pattern", "line")
	v.SetDefault("game.initial_balance", 200)
	v.SetDefault("game.call_interval", "10s")
	v.SetDefault("game.card_min", 145)
	v.SetDefault("game.card_max", 544)
	v.SetDefault("game.one_card_per_user", false)

	v.SetDefault("notify.queue_size", 256)

	v.SetDefault("autostart.enabled", false)
	v.SetDefault("autostart.interval", "30s")
	v.SetDefault("autostart.min_players", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
