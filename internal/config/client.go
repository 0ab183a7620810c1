package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	Server       string        `mapstructure:"server"`
	Token        string        `mapstructure:"token"`
	TokenHeader  string        `mapstructure:"token_header"`
	Offline      bool          `mapstructure:"offline"`
	DB           string        `mapstructure:"db"`
	Name         string        `mapstructure:"name"`
	InitialLives int           `mapstructure:"initial_lives"`
	Words        string        `mapstructure:"words"`
	Constrained  bool          `mapstructure:"constrained"`
	Seed         int64         `mapstructure:"seed"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LogFile      string        `mapstructure:"log_file"`
	LogLevel     string        `mapstructure:"log_level"`
}

// LoadClient merges client settings from flags, TYPERUSH_* environment
// variables and an optional client.yaml, in that order of precedence.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	setClientDefaults(v)

	v.SetConfigName("client")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.typerush")
	v.AddConfigPath(".")

	// e.g., TYPERUSH_SERVER, TYPERUSH_TOKEN_HEADER
	v.SetEnvPrefix("typerush")
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read client config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the client settings.
func (c *ClientConfig) Validate() error {
	if c.Offline {
		if c.DB == "" {
			return fmt.Errorf("db path is required in offline mode")
		}
		return nil
	}
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.Server)
	}
	if c.InitialLives < 0 {
		return fmt.Errorf("initial lives must not be negative")
	}
	return nil
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("token_header", "x-whop-user-token")
	v.SetDefault("db", "~/.typerush/offline.db")
	v.SetDefault("initial_lives", 3)
	v.SetDefault("timeout", "10s")
	v.SetDefault("log_file", "~/.typerush/client.log")
	v.SetDefault("log_level", "info")
}
