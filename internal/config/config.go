package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Presale   PresaleConfig   `mapstructure:"presale"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Session   SessionConfig   `mapstructure:"session"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// PriceFeedConfig holds settings for the price aggregator and its providers.
type PriceFeedConfig struct {
	RefreshInterval      time.Duration     `mapstructure:"refresh_interval"`
	RequestTimeout       time.Duration     `mapstructure:"request_timeout"`
	PrimaryURL           string            `mapstructure:"primary_url"`
	SecondaryURL         string            `mapstructure:"secondary_url"`
	QuoteCurrency        string            `mapstructure:"quote_currency"`
	Majors               map[string]string `mapstructure:"majors"`
	RefreshRatePerMinute int               `mapstructure:"refresh_rate_per_minute"`
}

// PresaleConfig holds the immutable sale parameters handed to the orchestrator.
type PresaleConfig struct {
	TokenSymbol           string        `mapstructure:"token_symbol"`
	TokenPrice            float64       `mapstructure:"token_price"`
	NextPrice             float64       `mapstructure:"next_price"`
	TargetRaise           float64       `mapstructure:"target_raise"`
	InitialRaised         float64       `mapstructure:"initial_raised"`
	Countdown             CountdownSpec `mapstructure:"countdown"`
	TickInterval          time.Duration `mapstructure:"tick_interval"`
	ErrorClearDelay       time.Duration `mapstructure:"error_clear_delay"`
	SimulationProbability float64       `mapstructure:"simulation_probability"`
	SimulationMaxStep     float64       `mapstructure:"simulation_max_step"`
	OnrampURL             string        `mapstructure:"onramp_url"`
	PresaleContract       string        `mapstructure:"presale_contract"`
	NativePurchaseMethod  string        `mapstructure:"native_purchase_method"`
	TokenPurchaseMethod   string        `mapstructure:"token_purchase_method"`
	NativeDecimals        uint8         `mapstructure:"native_decimals"`
}

// CountdownSpec is the initial value of the sale-stage countdown.
type CountdownSpec struct {
	Days    int `mapstructure:"days"`
	Hours   int `mapstructure:"hours"`
	Minutes int `mapstructure:"minutes"`
	Seconds int `mapstructure:"seconds"`
}

// LedgerConfig holds settings for the ledger network client.
type LedgerConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	RaisedDecimals      uint8         `mapstructure:"raised_decimals"`
	RaisedPollInterval  time.Duration `mapstructure:"raised_poll_interval"`
}

// SessionConfig holds settings for purchase sessions.
type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	ReceiptTTL      time.Duration `mapstructure:"receipt_ttl"`
}

// CatalogConfig points at the currency catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Printf("Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("PRESALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fluid-presale")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("pricefeed.refresh_interval", "30s")
	v.SetDefault("pricefeed.request_timeout", "5s")
	v.SetDefault("pricefeed.primary_url", "https://api.binance.com")
	v.SetDefault("pricefeed.secondary_url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("pricefeed.quote_currency", "usd")
	v.SetDefault("pricefeed.majors", map[string]string{"ETH": "ETHUSDT", "BNB": "BNBUSDT"})
	v.SetDefault("pricefeed.refresh_rate_per_minute", 6)

	v.SetDefault("presale.token_symbol", "FLUID")
	v.SetDefault("presale.token_price", 1.0)
	v.SetDefault("presale.next_price", 1.25)
	v.SetDefault("presale.target_raise", 4500000)
	v.SetDefault("presale.initial_raised", 2492463.99)
	v.SetDefault("presale.countdown.days", 3)
	v.SetDefault("presale.countdown.hours", 19)
	v.SetDefault("presale.countdown.minutes", 54)
	v.SetDefault("presale.countdown.seconds", 32)
	v.SetDefault("presale.tick_interval", "1s")
	v.SetDefault("presale.error_clear_delay", "5s")
	v.SetDefault("presale.simulation_probability", 0.05)
	v.SetDefault("presale.simulation_max_step", 100)
	v.SetDefault("presale.onramp_url", "https://wert.io")
	v.SetDefault("presale.presale_contract", "0x0000000000000000000000000000000000000000")
	v.SetDefault("presale.native_purchase_method", "buyTokens")
	v.SetDefault("presale.token_purchase_method", "buyWithUSDT")
	v.SetDefault("presale.native_decimals", 18)

	v.SetDefault("ledger.endpoint", "http://127.0.0.1:8545")
	v.SetDefault("ledger.request_timeout", "10s")
	v.SetDefault("ledger.receipt_timeout", "3m")
	v.SetDefault("ledger.receipt_poll_interval", "2s")
	v.SetDefault("ledger.raised_decimals", 18)
	v.SetDefault("ledger.raised_poll_interval", "30s")

	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.cleanup_interval", "5m")
	v.SetDefault("session.receipt_ttl", "24h")

	v.SetDefault("catalog.path", "")
}

// Validate rejects configurations the orchestrator cannot run with.
func (c Config) Validate() error {
	if c.Presale.TokenPrice <= 0 {
		return fmt.Errorf("presale.token_price must be positive, got %v", c.Presale.TokenPrice)
	}
	if c.Presale.TargetRaise <= 0 {
		return fmt.Errorf("presale.target_raise must be positive, got %v", c.Presale.TargetRaise)
	}
	if c.Presale.SimulationProbability < 0 || c.Presale.SimulationProbability > 1 {
		return fmt.Errorf("presale.simulation_probability must be within [0,1], got %v", c.Presale.SimulationProbability)
	}
	if !common.IsHexAddress(c.Presale.PresaleContract) {
		return fmt.Errorf("presale.presale_contract is not a valid address: %q", c.Presale.PresaleContract)
	}
	if len(c.PriceFeed.Majors) == 0 {
		return errors.New("pricefeed.majors cannot be empty")
	}
	return nil
}

func (c PriceFeedConfig) GetRefreshInterval() time.Duration {
	return c.RefreshInterval
}

func (c PriceFeedConfig) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

func (c PresaleConfig) GetTickInterval() time.Duration {
	return c.TickInterval
}

func (c PresaleConfig) GetErrorClearDelay() time.Duration {
	return c.ErrorClearDelay
}

// PresaleAddress returns the purchase contract address. Validate guarantees it parses.
func (c PresaleConfig) PresaleAddress() common.Address {
	return common.HexToAddress(c.PresaleContract)
}

func (c LedgerConfig) GetReceiptTimeout() time.Duration {
	return c.ReceiptTimeout
}

func (c LedgerConfig) GetRaisedPollInterval() time.Duration {
	return c.RaisedPollInterval
}

func (c SessionConfig) GetIdleTTL() time.Duration {
	return c.IdleTTL
}

func (c SessionConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}
