// Package config loads the tool's configuration from order-entry.yaml
// and ORDERENTRY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything the CLI needs to wire the sync core.
type Config struct {
	ERP    ERPConfig    `mapstructure:"erp"`
	Mirror MirrorConfig `mapstructure:"mirror"`
	Store  StoreConfig  `mapstructure:"store"`
}

// ERPConfig points at one ERP account's REST surface.
type ERPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AccountID string        `mapstructure:"account_id"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageSize  int           `mapstructure:"page_size"`
	MaxRows   int           `mapstructure:"max_rows"`
}

// MirrorConfig points at the shared mirror deployment.
type MirrorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads order-entry.yaml from path (or the working directory when
// path is empty) and applies ORDERENTRY_* environment overrides, e.g.
// ORDERENTRY_ERP_TOKEN for erp.token. A missing config file is fine as
// long as the environment supplies the required values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("order-entry")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.order-entry")
	}

	v.SetEnvPrefix("ORDERENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults must be bound for env-only configuration to
	// reach Unmarshal.
	for _, key := range []string{"erp.base_url", "erp.account_id", "erp.token", "mirror.base_url", "mirror.token"} {
		v.MustBindEnv(key)
	}

	v.SetDefault("erp.timeout", 120*time.Second)
	v.SetDefault("erp.page_size", 1000)
	v.SetDefault("erp.max_rows", 10000)
	v.SetDefault("mirror.timeout", 30*time.Second)
	v.SetDefault("store.path", "order-entry.db")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ERP.BaseURL == "" {
		return fmt.Errorf("erp.base_url is required (or ORDERENTRY_ERP_BASE_URL)")
	}
	if c.Mirror.BaseURL == "" {
		return fmt.Errorf("mirror.base_url is required (or ORDERENTRY_MIRROR_BASE_URL)")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}
