package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"credit-settlement/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	WebhookPath    string        `yaml:"webhook_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply embedded migrations at startup
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type SettlementConfig struct {
	APIKey               string `yaml:"api_key"`     // shared secret presented by the gateway
	SystemCode           string `yaml:"system_code"` // memo prefix preceding the payment id
	IDLength             int    `yaml:"id_length"`
	CreditExchangeRate   int64  `yaml:"credit_exchange_rate"` // currency units per credit
	MinAcceptPercent     int64  `yaml:"min_accept_percent"`
	TierTolerancePercent int64  `yaml:"tier_tolerance_percent"`
	Actor                string `yaml:"actor"`
}

type TierConfig struct {
	Tier            string `yaml:"tier"`
	MonthlyPrice    int64  `yaml:"monthly_price"`
	YearlyPrice     int64  `yaml:"yearly_price"`
	CreditsPerMonth int64  `yaml:"credits_per_month"`
}

type PricingConfig struct {
	Tiers []TierConfig `yaml:"tiers"`
}

type SecurityConfig struct {
	ServiceJWTSecret  string        `yaml:"service_jwt_secret"` // HS256 secret for the internal read/debit API
	AuthFailureLimit  int           `yaml:"auth_failure_limit"`  // failed webhook auths per remote per window
	AuthFailureWindow time.Duration `yaml:"auth_failure_window"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Settlement SettlementConfig `yaml:"settlement"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies env overrides and defaults, and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SETTLEMENT_API_KEY"); v != "" {
		c.Settlement.APIKey = v
	}
	if v := os.Getenv("SERVICE_JWT_SECRET"); v != "" {
		c.Security.ServiceJWTSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/api/v1/webhooks/sepay"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "settlement.events"
	}
	if c.Settlement.IDLength <= 0 {
		c.Settlement.IDLength = 32
	}
	if c.Settlement.CreditExchangeRate <= 0 {
		c.Settlement.CreditExchangeRate = 1000
	}
	if c.Settlement.MinAcceptPercent <= 0 {
		c.Settlement.MinAcceptPercent = 95
	}
	if c.Settlement.Actor == "" {
		c.Settlement.Actor = "SEPAY_WEBHOOK"
	}
	if c.Security.AuthFailureLimit <= 0 {
		c.Security.AuthFailureLimit = 20
	}
	if c.Security.AuthFailureWindow <= 0 {
		c.Security.AuthFailureWindow = time.Minute
	}
}

// Validate performs minimal sanity checks.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Settlement.APIKey == "" {
		return errors.New("settlement.api_key is required")
	}
	if strings.TrimSpace(c.Settlement.SystemCode) == "" {
		return errors.New("settlement.system_code is required")
	}
	if c.Settlement.MinAcceptPercent > 100 {
		return errors.New("settlement.min_accept_percent must be <= 100")
	}
	if c.Settlement.TierTolerancePercent < 0 || c.Settlement.TierTolerancePercent >= 50 {
		return errors.New("settlement.tier_tolerance_percent must be in [0, 50)")
	}
	if _, err := c.PriceTable(); err != nil {
		return fmt.Errorf("pricing.tiers: %w", err)
	}
	return nil
}

// PriceTable converts the pricing section into the immutable table used by the
// settlement engine. An empty section yields the built-in defaults.
func (c *Config) PriceTable() (*model.PriceTable, error) {
	if len(c.Pricing.Tiers) == 0 {
		return model.DefaultPriceTable(), nil
	}
	rows := make([]model.TierPrice, 0, len(c.Pricing.Tiers))
	for _, t := range c.Pricing.Tiers {
		tier, ok := model.ParseTier(strings.ToUpper(strings.TrimSpace(t.Tier)))
		if !ok || tier == model.TierNone {
			return nil, fmt.Errorf("unknown tier %q", t.Tier)
		}
		rows = append(rows, model.TierPrice{
			Tier:            tier,
			MonthlyPrice:    t.MonthlyPrice,
			YearlyPrice:     t.YearlyPrice,
			CreditsPerMonth: t.CreditsPerMonth,
		})
	}
	return model.NewPriceTable(rows)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
