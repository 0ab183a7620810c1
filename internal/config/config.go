// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvProduction is the app.env value that disables every development fallback.
const EnvProduction = "production"

// Config holds all server configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Whop     WhopConfig     `mapstructure:"whop"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Game     GameConfig     `mapstructure:"game"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the sustained requests per second allowed per client IP on
	// the checkout and webhook routes.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the optional Redis cache connection.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds read-cache settings for user rows.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AuthConfig holds platform user-token verification settings.
type AuthConfig struct {
	Header       string `mapstructure:"header"`
	PublicKeyPEM string `mapstructure:"public_key_pem"`
	Issuer       string `mapstructure:"issuer"`
	// DevUserID is used when no token header is present and the app is not
	// running in production. Leave empty to always require a token.
	DevUserID string `mapstructure:"dev_user_id"`
}

// WhopConfig holds payment platform settings.
type WhopConfig struct {
	APIBaseURL          string        `mapstructure:"api_base_url"`
	APIKey              string        `mapstructure:"api_key"`
	AppID               string        `mapstructure:"app_id"`
	CompanyID           string        `mapstructure:"company_id"`
	WebhookSecret       string        `mapstructure:"webhook_secret"`
	WebhookTolerance    time.Duration `mapstructure:"webhook_tolerance"`
	PricePerHeart       string        `mapstructure:"price_per_heart"`
	Currency            string        `mapstructure:"currency"`
	CheckoutURLTemplate string        `mapstructure:"checkout_url_template"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig holds the admin notification bot.
type TelegramConfig struct {
	Token        string  `mapstructure:"token"`
	AdminChatIDs []int64 `mapstructure:"admin_chat_ids"`
}

// GameConfig holds gameplay economy settings shared with clients.
type GameConfig struct {
	InitialLives     int `mapstructure:"initial_lives"`
	HeartsPerPayment int `mapstructure:"hearts_per_payment"`
	LeaderboardSize  int `mapstructure:"leaderboard_size"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// IsProduction reports whether development fallbacks must be disabled.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// PriceDecimal parses the configured heart price.
func (w *WhopConfig) PriceDecimal() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(w.PricePerHeart)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid whop.price_per_heart %q: %w", w.PricePerHeart, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("whop.price_per_heart must be positive, got %s", price)
	}
	return price, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory. A .env file in the
// working directory is loaded first so its values act as environment.
func Load(configPath string) (*Config, error) {
	// Missing .env is fine; existing env vars are never overwritten.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g., DATABASE_HOST, WHOP_API_KEY, AUTH_DEV_USER_ID
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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

// Validate checks settings that would otherwise fail late at request time.
func (c *Config) Validate() error {
	if _, err := c.Whop.PriceDecimal(); err != nil {
		return err
	}
	if c.Game.InitialLives < 0 {
		return fmt.Errorf("game.initial_lives must not be negative")
	}
	if c.Game.HeartsPerPayment < 1 {
		return fmt.Errorf("game.hearts_per_payment must be at least 1")
	}
	if c.IsProduction() {
		if c.Auth.PublicKeyPEM == "" {
			return fmt.Errorf("auth.public_key_pem is required in production")
		}
		if c.Whop.WebhookSecret == "" {
			return fmt.Errorf("whop.webhook_secret is required in production")
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "typerush")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "typerush")
	v.SetDefault("database.name", "typerush")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl", "30s")

	v.SetDefault("auth.header", "x-whop-user-token")
	v.SetDefault("auth.issuer", "urn:whopcom:exp-proxy")

	v.SetDefault("whop.api_base_url", "https://api.whop.com/api/v2")
	v.SetDefault("whop.webhook_tolerance", "5m")
	v.SetDefault("whop.price_per_heart", "1.00")
	v.SetDefault("whop.currency", "usd")
	v.SetDefault("whop.checkout_url_template", "https://whop.com/checkout/{plan_id}?session={checkout_id}")
	v.SetDefault("whop.request_timeout", "10s")

	v.SetDefault("game.initial_lives", 0)
	v.SetDefault("game.hearts_per_payment", 1)
	v.SetDefault("game.leaderboard_size", 10)
}

// IsAdminChat checks if a chat ID is a configured notification recipient.
func (c *Config) IsAdminChat(chatID int64) bool {
	for _, id := range c.Telegram.AdminChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
