package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        "0.0.0.0:8080",
		Storage:     StoragePostgres,
		DatabaseURL: "postgres://localhost/foodcart",
		Pricing: PricingConfig{
			TaxName: "Sales Tax", TaxRate: "8.75",
			FeeName: "Service Fee", FeeRate: "3",
			SigningKey:    "secret",
			UnmatchedZone: "reject",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"memory without database", func(c *Config) { c.Storage = StorageMemory; c.DatabaseURL = "" }, ""},
		{"postgres without database", func(c *Config) { c.DatabaseURL = "" }, "database URL is required"},
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, `unknown storage "redis"`},
		{"memory with postgres events", func(c *Config) {
			c.Storage = StorageMemory
			c.Events.Postgres = true
		}, "postgres events need postgres storage"},
		{"missing signing key", func(c *Config) { c.Pricing.SigningKey = "" }, "signing key is required"},
		{"bad tax rate", func(c *Config) { c.Pricing.TaxRate = "lots" }, "tax rate"},
		{"fee over 100", func(c *Config) { c.Pricing.FeeRate = "150" }, "fee rate"},
		{"bad unmatched zone", func(c *Config) { c.Pricing.UnmatchedZone = "guess" }, "unmatched zone"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestPricingConfig_Policy(t *testing.T) {
	p, err := validConfig().Pricing.Policy()
	require.NoError(t, err)
	assert.Equal(t, "8.75", p.TaxRate.String())
	assert.Equal(t, "3", p.FeeRate.String())
	assert.Equal(t, "Service Fee", p.FeeName)

	p, err = PricingConfig{}.Policy()
	require.NoError(t, err)
	assert.True(t, p.TaxRate.IsZero())
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	c := Config{Addr: "0.0.0.0:8080"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", c.Addr)

	c = Config{Addr: "127.0.0.1:1234", DatabaseURL: "postgres://explicit/db"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", c.DatabaseURL)
	assert.Equal(t, "127.0.0.1:1234", c.Addr)
}
