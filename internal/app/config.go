package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/pricing"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (FOODCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (FOODCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (FOODCART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	SeedAPIKey   string `usage:"Staff API key registered with every scope when memory storage loads demo data" flag:"seed-api-key"`
	Pricing      PricingConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the platform pricing policy and the quote signing key.
type PricingConfig struct {
	TaxName            string `default:"Sales Tax" usage:"Label of the tax line"`
	TaxRate            string `default:"8.75" usage:"Default tax rate in percent"`
	FeeName            string `default:"Service Fee" usage:"Label of the service fee line"`
	FeeRate            string `default:"3" usage:"Default service fee rate in percent"`
	SigningKey         string `usage:"HMAC key signing cart summaries (FOODCART_PRICING_SIGNING_KEY)" flag:"signing-key"`
	UnmatchedZone      string `default:"reject" usage:"Delivery to an unknown zone: reject or zero"`
	EnforceAddonLimits bool   `default:"false" usage:"Reject selections violating addon group limits"`
}

// EventsConfig controls the event notifier.
type EventsConfig struct {
	// Postgres relays events through LISTEN/NOTIFY so that every replica
	// sees them.
	Postgres  bool `default:"false" usage:"Relay events through PostgreSQL NOTIFY"`
	HubBuffer int  `default:"16" usage:"Per-subscriber event buffer"`
	Queue     int  `default:"256" usage:"Pending NOTIFY queue size"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FOODCART",
		Files:     []string{"config.yaml", "/etc/foodcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set FOODCART_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
		if c.Events.Postgres {
			return errors.New("postgres events need postgres storage")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Pricing.SigningKey == "" {
		return errors.New("signing key is required: set FOODCART_PRICING_SIGNING_KEY")
	}
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}
	if _, err := pricing.ParseUnmatchedZone(c.Pricing.UnmatchedZone); err != nil {
		return errors.Wrap(err, "pricing")
	}
	return nil
}

// Policy parses the configured platform rates.
func (p PricingConfig) Policy() (pricing.RatePolicy, error) {
	tax, err := parseRate(p.TaxRate)
	if err != nil {
		return pricing.RatePolicy{}, errors.Wrap(err, "tax rate")
	}
	fee, err := parseRate(p.FeeRate)
	if err != nil {
		return pricing.RatePolicy{}, errors.Wrap(err, "fee rate")
	}
	return pricing.RatePolicy{TaxName: p.TaxName, TaxRate: tax, FeeName: p.FeeName, FeeRate: fee}, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := pricing.ParseBounded(s, 3, decimal.NewFromInt(100))
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, errors.Errorf("%s is outside 0..100", s)
	}
	return v, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FOODCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
