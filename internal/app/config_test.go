package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoaderConfig() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "KART",
		SkipFiles: true,
		SkipFlags: true,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("KART_STORE", "memory")
	t.Setenv("KART_PAYPAL_CLIENT_ID", "id")
	t.Setenv("KART_PAYPAL_CLIENT_SECRET", "secret")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "id", cfg.PayPal.ClientID)
	assert.Equal(t, "USD", cfg.PayPal.Currency)
	assert.Equal(t, 10*time.Second, cfg.Checkout.StepTimeout)
	assert.Equal(t, 15*time.Second, cfg.Checkout.CompensationTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Checkout.LockTTL)
	assert.Equal(t, "checkout.events", cfg.Events.Exchange)

	fee, err := cfg.Checkout.Fee()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("5.00").Equal(fee))
}

func TestLoadConfig_PlatformFallbacks(t *testing.T) {
	t.Setenv("KART_PAYPAL_CLIENT_ID", "id")
	t.Setenv("KART_PAYPAL_CLIENT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://kart@db/kart")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, "postgres://kart@db/kart", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.Events.AMQPURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_PrefixedWins(t *testing.T) {
	t.Setenv("KART_PAYPAL_CLIENT_ID", "id")
	t.Setenv("KART_PAYPAL_CLIENT_SECRET", "secret")
	t.Setenv("KART_DATABASE_URL", "postgres://primary/kart")
	t.Setenv("DATABASE_URL", "postgres://platform/kart")
	t.Setenv("KART_ADDR", "127.0.0.1:7000")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, "postgres://primary/kart", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:       StorePostgres,
			DatabaseURL: "postgres://db/kart",
			PayPal:      PayPalConfig{ClientID: "id", ClientSecret: "secret"},
			Checkout:    CheckoutConfig{ShippingFee: "5.00"},
		}
	}

	for _, tt := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "MemoryWithoutDatabase", mutate: func(c *Config) { c.Store = StoreMemory; c.DatabaseURL = "" }},
		{name: "PostgresWithoutDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "UnknownStore", mutate: func(c *Config) { c.Store = "sqlite" }, wantErr: `unknown store "sqlite"`},
		{name: "MissingCredentials", mutate: func(c *Config) { c.PayPal.ClientSecret = "" }, wantErr: "PayPal credentials"},
		{name: "BadFee", mutate: func(c *Config) { c.Checkout.ShippingFee = "five" }, wantErr: "parse shipping fee"},
		{name: "SubCentFee", mutate: func(c *Config) { c.Checkout.ShippingFee = "4.995" }, wantErr: "more than 2 decimal places"},
		{name: "NegativeFee", mutate: func(c *Config) { c.Checkout.ShippingFee = "-1" }, wantErr: "negative"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
