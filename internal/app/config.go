package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string       `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string       `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Store       string       `default:"postgres" usage:"Order store backend: postgres or memory"`
	PayPal      PayPalConfig `env:"PAYPAL" flag:"paypal"`
	Checkout    CheckoutConfig
	Redis       RedisConfig
	Events      EventsConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PayPalConfig holds payment processor credentials.
type PayPalConfig struct {
	BaseURL      string `env:"BASE_URL" default:"https://api-m.sandbox.paypal.com" usage:"PayPal REST API base URL" flag:"base-url"`
	ClientID     string `env:"CLIENT_ID" usage:"PayPal client id" flag:"client-id"`
	ClientSecret string `env:"CLIENT_SECRET" usage:"PayPal client secret" flag:"client-secret"`
	Currency     string `default:"USD" usage:"ISO 4217 currency of all amounts"`
	BrandName    string `env:"BRAND_NAME" default:"Kart" usage:"Brand name shown on the PayPal approval page" flag:"brand-name"`
}

// CheckoutConfig tunes the capture saga.
type CheckoutConfig struct {
	ShippingFee         string        `default:"5.00" usage:"Flat delivery fee" flag:"shipping-fee"`
	StepTimeout         time.Duration `default:"10s" usage:"Timeout of each gateway or store call" flag:"step-timeout"`
	CompensationTimeout time.Duration `default:"15s" usage:"Timeout of the whole compensation phase" flag:"compensation-timeout"`
	LockTTL             time.Duration `default:"2m" usage:"Expiry of the distributed capture lock" flag:"lock-ttl"`
}

// RedisConfig enables the distributed capture lock when URL is set.
type RedisConfig struct {
	URL string `usage:"Redis URL for the capture lock (KART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// EventsConfig enables domain event publishing when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string `env:"AMQP_URL" usage:"AMQP broker URL (KART_EVENTS_AMQP_URL or AMQP_URL)" flag:"amqp-url"`
	Exchange string `default:"checkout.events" usage:"Topic exchange for domain events"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string      `default:"*" usage:"Allowed CORS origins"`
	MaxAge  time.Duration `default:"24h" usage:"Preflight cache duration" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, ac)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
		return errors.New("PayPal credentials are required: set KART_PAYPAL_CLIENT_ID and KART_PAYPAL_CLIENT_SECRET")
	}
	fee, err := c.Checkout.Fee()
	if err != nil {
		return err
	}
	if fee.IsNegative() {
		return errors.Errorf("shipping fee %s is negative", fee)
	}
	if !fee.Equal(fee.Round(2)) {
		return errors.Errorf("shipping fee %s has more than 2 decimal places", fee)
	}
	return nil
}

// Fee parses the configured shipping fee.
func (c CheckoutConfig) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse shipping fee")
	}
	return fee, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Redis.URL, "REDIS_URL")
	fallback(&c.Events.AMQPURL, "AMQP_URL")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
