package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"wager-rewards/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Affiliate  AffiliateConfig  `mapstructure:"affiliate"`
	Payout     PayoutConfig     `mapstructure:"payout"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Milestones MilestonesConfig `mapstructure:"milestones"`
	Challenges ChallengesConfig `mapstructure:"challenges"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AffiliateConfig covers the affiliate stats API.
type AffiliateConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PayoutConfig covers the tip API.
type PayoutConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SenderID       string        `mapstructure:"sender_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShowInChat     bool          `mapstructure:"show_in_chat"`
	BalanceType    string        `mapstructure:"balance_type"`
}

// CacheConfig governs the snapshot refresh loop and the staleness gate.
type CacheConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RefreshOffset   time.Duration `mapstructure:"refresh_offset"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// TierConfig is one milestone tier definition.
type TierConfig struct {
	Name      string  `mapstructure:"name"`
	Threshold float64 `mapstructure:"threshold"`
	Reward    float64 `mapstructure:"reward"`
}

// MilestonesConfig governs the milestone evaluation loop.
type MilestonesConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Offset   time.Duration `mapstructure:"offset"`
	Tiers    []TierConfig  `mapstructure:"tiers"`
}

// ChallengesConfig governs the challenge evaluation loop.
type ChallengesConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Offset   time.Duration `mapstructure:"offset"`
}

// DispatchConfig governs the payout queue consumer.
type DispatchConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// NotifyConfig routes payout announcements to a webhook.
type NotifyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REWARDSBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rewardsbot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.advisory_lock_key", int64(0x72657742))

	v.SetDefault("affiliate.request_timeout", "15s")
	v.SetDefault("affiliate.user_agent", "rewardsbot/1.0")

	v.SetDefault("payout.request_timeout", "15s")
	v.SetDefault("payout.show_in_chat", true)
	v.SetDefault("payout.balance_type", "cash")

	v.SetDefault("cache.refresh_interval", "10m")
	v.SetDefault("cache.refresh_offset", "0s")
	v.SetDefault("cache.max_age", "15m")

	v.SetDefault("milestones.interval", "10m")
	v.SetDefault("milestones.offset", "2m")

	v.SetDefault("challenges.interval", "5m")
	v.SetDefault("challenges.offset", "4m")

	v.SetDefault("dispatch.cooldown", "30s")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.request_timeout", "10s")

	v.SetDefault("export.max_rows", 50)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("cache.refresh_interval must be greater than zero")
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("cache.max_age must be greater than zero")
	}
	if c.Milestones.Interval <= 0 {
		return fmt.Errorf("milestones.interval must be greater than zero")
	}
	if c.Challenges.Interval <= 0 {
		return fmt.Errorf("challenges.interval must be greater than zero")
	}
	if c.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown cannot be negative")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	for i, tier := range c.Milestones.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("milestones.tiers[%d].name must not be empty", i)
		}
		if tier.Threshold <= 0 {
			return fmt.Errorf("milestones.tiers[%d].threshold must be greater than zero", i)
		}
		if tier.Reward <= 0 {
			return fmt.Errorf("milestones.tiers[%d].reward must be greater than zero", i)
		}
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url must be set when notify.enabled is true")
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
