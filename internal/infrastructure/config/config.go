package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	Erp          ErpConfig
	Marketplace  MarketplaceConfig
	Catalog      CatalogConfig
	Inventory    InventoryConfig
	Billing      BillingConfig
	Tax          TaxConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ErpConfig holds the ERP endpoint settings
type ErpConfig struct {
	URL      string
	Database string
	User     string
	Password string
	Timeout  time.Duration
}

// MarketplaceConfig holds the sales channel settings
type MarketplaceConfig struct {
	URL           string
	Token         string
	MarketplaceID string
	ChannelID     string
	Timeout       time.Duration
}

// CatalogConfig holds SKU resolution settings
type CatalogConfig struct {
	// CatalogWidth is the canonical zero-padded SKU width
	CatalogWidth int
	// FulfillmentSuffixes maps channel suffixes to fulfillment hints,
	// checked in declaration order
	FulfillmentSuffixes map[string]string
	// CosmeticSuffixes are stripped without semantic meaning
	CosmeticSuffixes []string
	// SafetyStockDefault is the floor applied when no override exists
	SafetyStockDefault float64
	// ReloadInterval is how often operator-edited rules are re-read
	ReloadInterval time.Duration
	// AlertWindow suppresses repeated unresolved-SKU alerts
	AlertWindow time.Duration
}

// InventoryConfig holds reconciliation sweep settings
type InventoryConfig struct {
	SweepInterval   time.Duration
	ChangeThreshold int
	Workers         int
	// SubmitRate is the maximum channel calls per second
	SubmitRate      float64
	DiscrepancyTopN int
}

// BillingConfig holds order synthesis settings
type BillingConfig struct {
	FreightProductCode         string
	AllowStandaloneCreditNotes bool
	// SpoolDir is where the delivery pipeline drops transaction payload
	// files. Empty disables the spool intake.
	SpoolDir          string
	SpoolPollInterval time.Duration
}

// TaxConfig holds fiscal classification settings
type TaxConfig struct {
	HomeCountry string
	// Registrations maps country codes to dedicated journal refs
	Registrations map[string]string
	// ReferenceTableVersion identifies the loaded reference revision
	ReferenceTableVersion string
}

// NotificationConfig selects where alerts are delivered
type NotificationConfig struct {
	// WebhookURL posts alerts to an HTTP endpoint, typically a chat
	// integration. Empty keeps alerts in the application log.
	WebhookURL     string
	WebhookToken   string
	WebhookTimeout time.Duration
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	Enabled       bool
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MARKETSYNC_ prefix (e.g., MARKETSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("MARKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Erp: ErpConfig{
			URL:      v.GetString("erp.url"),
			Database: v.GetString("erp.database"),
			User:     v.GetString("erp.user"),
			Password: v.GetString("erp.password"),
			Timeout:  v.GetDuration("erp.timeout"),
		},
		Marketplace: MarketplaceConfig{
			URL:           v.GetString("marketplace.url"),
			Token:         v.GetString("marketplace.token"),
			MarketplaceID: v.GetString("marketplace.marketplace_id"),
			ChannelID:     v.GetString("marketplace.channel_id"),
			Timeout:       v.GetDuration("marketplace.timeout"),
		},
		Catalog: CatalogConfig{
			CatalogWidth:        v.GetInt("catalog.width"),
			FulfillmentSuffixes: v.GetStringMapString("catalog.fulfillment_suffixes"),
			CosmeticSuffixes:    v.GetStringSlice("catalog.cosmetic_suffixes"),
			SafetyStockDefault:  v.GetFloat64("catalog.safety_stock_default"),
			ReloadInterval:      v.GetDuration("catalog.reload_interval"),
			AlertWindow:         v.GetDuration("catalog.alert_window"),
		},
		Inventory: InventoryConfig{
			SweepInterval:   v.GetDuration("inventory.sweep_interval"),
			ChangeThreshold: v.GetInt("inventory.change_threshold"),
			Workers:         v.GetInt("inventory.workers"),
			SubmitRate:      v.GetFloat64("inventory.submit_rate"),
			DiscrepancyTopN: v.GetInt("inventory.discrepancy_top_n"),
		},
		Billing: BillingConfig{
			FreightProductCode:         v.GetString("billing.freight_product_code"),
			AllowStandaloneCreditNotes: v.GetBool("billing.allow_standalone_credit_notes"),
			SpoolDir:                   v.GetString("billing.spool_dir"),
			SpoolPollInterval:          v.GetDuration("billing.spool_poll_interval"),
		},
		Tax: TaxConfig{
			HomeCountry:           v.GetString("tax.home_country"),
			Registrations:         v.GetStringMapString("tax.registrations"),
			ReferenceTableVersion: v.GetString("tax.reference_table_version"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			RetryAttempts: v.GetInt("scheduler.retry_attempts"),
			RetryDelay:    v.GetDuration("scheduler.retry_delay"),
		},
		Notification: NotificationConfig{
			WebhookURL:     v.GetString("notification.webhook_url"),
			WebhookToken:   v.GetString("notification.webhook_token"),
			WebhookTimeout: v.GetDuration("notification.webhook_timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Erp.Timeout == 0 {
		cfg.Erp.Timeout = 30 * time.Second
	}
	if cfg.Marketplace.Timeout == 0 {
		cfg.Marketplace.Timeout = 30 * time.Second
	}
	if cfg.Marketplace.ChannelID == "" {
		cfg.Marketplace.ChannelID = "default"
	}
	if cfg.Catalog.CatalogWidth == 0 {
		cfg.Catalog.CatalogWidth = 5
	}
	if len(cfg.Catalog.FulfillmentSuffixes) == 0 {
		cfg.Catalog.FulfillmentSuffixes = map[string]string{"-fbm": "FBM"}
	}
	if cfg.Catalog.SafetyStockDefault == 0 {
		cfg.Catalog.SafetyStockDefault = 10
	}
	if cfg.Catalog.ReloadInterval == 0 {
		cfg.Catalog.ReloadInterval = 5 * time.Minute
	}
	if cfg.Catalog.AlertWindow == 0 {
		cfg.Catalog.AlertWindow = 24 * time.Hour
	}
	if cfg.Inventory.SweepInterval == 0 {
		cfg.Inventory.SweepInterval = 15 * time.Minute
	}
	if cfg.Inventory.ChangeThreshold == 0 {
		cfg.Inventory.ChangeThreshold = 1
	}
	if cfg.Inventory.Workers == 0 {
		cfg.Inventory.Workers = 4
	}
	if cfg.Inventory.SubmitRate == 0 {
		cfg.Inventory.SubmitRate = 2
	}
	if cfg.Inventory.DiscrepancyTopN == 0 {
		cfg.Inventory.DiscrepancyTopN = 20
	}
	if cfg.Billing.FreightProductCode == "" {
		cfg.Billing.FreightProductCode = "SHIP"
	}
	if cfg.Billing.SpoolPollInterval == 0 {
		cfg.Billing.SpoolPollInterval = 30 * time.Second
	}
	if cfg.Tax.HomeCountry == "" {
		cfg.Tax.HomeCountry = "BE"
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Notification.WebhookTimeout == 0 {
		cfg.Notification.WebhookTimeout = 10 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Inventory.Workers <= 0 {
		return fmt.Errorf("inventory.workers must be positive")
	}
	if c.Inventory.SubmitRate <= 0 {
		return fmt.Errorf("inventory.submit_rate must be positive")
	}
	if len(c.Tax.HomeCountry) != 2 {
		return fmt.Errorf("tax.home_country must be a two-letter country code, got %q", c.Tax.HomeCountry)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Erp.URL == "" {
			return fmt.Errorf("erp.url is required in production")
		}
		if c.Erp.Password == "" {
			return fmt.Errorf("erp.password is required in production")
		}
		if c.Marketplace.URL == "" {
			return fmt.Errorf("marketplace.url is required in production")
		}
		if c.Marketplace.Token == "" {
			return fmt.Errorf("marketplace.token is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
