package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	// RPC settings
	RPCUrl       string
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RPCRateLimit float64
	RPCBurst     int
	Commitment   string

	// Confirmation polling
	ConfirmInterval time.Duration
	ConfirmAttempts int

	// Balance reconciliation
	BalanceFreshness       time.Duration
	BalanceRecheckAttempts int
	BalanceRecheckDelay    time.Duration

	// Quoting and fees
	FallbackHaircutBps     uint16
	DistributionMarginPpm  uint64
	StaleQuoteToleranceBps uint16
	DefaultSlippageBps     uint16

	// Pool creation
	DLMMPresetParameter string
	DLMMBinStep         uint16
	PositionWidth       int32
	CPFeeBps            uint16

	// Redis settings
	RedisAddr string
	RedisDB   int

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Price oracle
	OracleURL    string
	OracleAPIKey string

	// Bundle relay
	BundleURL         string
	BundleTipLamports uint64
	BundleTipAccount  string

	// Wallet
	WalletPrivateKey string

	// API
	APIAddr    string
	APIKey     string
	DevMode    bool
	QuoteRate  float64
	QuoteBurst int

	// Logging
	LogLevel      string
	LogFormat     string
	LogOutput     string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// Load merges defaults, an optional config file, RIFT_* environment variables and
// bound flags, in increasing order of precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("rift")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Config{
		RPCUrl:       v.GetString("rpc-url"),
		HTTPTimeout:  v.GetDuration("http-timeout"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		RPCRateLimit: v.GetFloat64("rpc-rate-limit"),
		RPCBurst:     v.GetInt("rpc-burst"),
		Commitment:   v.GetString("commitment"),

		ConfirmInterval: v.GetDuration("confirm-interval"),
		ConfirmAttempts: v.GetInt("confirm-attempts"),

		BalanceFreshness:       v.GetDuration("balance-freshness"),
		BalanceRecheckAttempts: v.GetInt("balance-recheck-attempts"),
		BalanceRecheckDelay:    v.GetDuration("balance-recheck-delay"),

		FallbackHaircutBps:     v.GetUint16("fallback-haircut-bps"),
		DistributionMarginPpm:  v.GetUint64("distribution-margin-ppm"),
		StaleQuoteToleranceBps: v.GetUint16("stale-quote-tolerance-bps"),
		DefaultSlippageBps:     v.GetUint16("default-slippage-bps"),

		DLMMPresetParameter: v.GetString("dlmm-preset-parameter"),
		DLMMBinStep:         v.GetUint16("dlmm-bin-step"),
		PositionWidth:       v.GetInt32("position-width"),
		CPFeeBps:            v.GetUint16("cp-fee-bps"),

		RedisAddr: v.GetString("redis-addr"),
		RedisDB:   v.GetInt("redis-db"),

		ClickHouseAddr:     v.GetString("clickhouse-addr"),
		ClickHouseDatabase: v.GetString("clickhouse-database"),
		ClickHouseUsername: v.GetString("clickhouse-username"),
		ClickHousePassword: v.GetString("clickhouse-password"),

		OracleURL:    v.GetString("oracle-url"),
		OracleAPIKey: v.GetString("oracle-api-key"),

		BundleURL:         v.GetString("bundle-url"),
		BundleTipLamports: v.GetUint64("bundle-tip-lamports"),
		BundleTipAccount:  v.GetString("bundle-tip-account"),

		WalletPrivateKey: v.GetString("wallet-private-key"),

		APIAddr:    v.GetString("api-addr"),
		APIKey:     v.GetString("api-key"),
		DevMode:    v.GetBool("dev-mode"),
		QuoteRate:  v.GetFloat64("quote-rate-limit"),
		QuoteBurst: v.GetInt("quote-burst"),

		LogLevel:      v.GetString("log-level"),
		LogFormat:     v.GetString("log-format"),
		LogOutput:     v.GetString("log-output"),
		LogMaxSize:    v.GetInt("log-max-size"),
		LogMaxBackups: v.GetInt("log-max-backups"),
		LogMaxAge:     v.GetInt("log-max-age"),
		LogCompress:   v.GetBool("log-compress"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	// RPC
	v.SetDefault("rpc-url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 2*time.Second)
	v.SetDefault("rpc-rate-limit", 10.0)
	v.SetDefault("rpc-burst", 20)
	v.SetDefault("commitment", "confirmed")

	// Confirmation
	v.SetDefault("confirm-interval", 1*time.Second)
	v.SetDefault("confirm-attempts", 30)

	// Balances
	v.SetDefault("balance-freshness", 30*time.Second)
	v.SetDefault("balance-recheck-attempts", 5)
	v.SetDefault("balance-recheck-delay", 2*time.Second)

	// Quoting
	v.SetDefault("fallback-haircut-bps", 100)
	v.SetDefault("distribution-margin-ppm", 10)
	v.SetDefault("stale-quote-tolerance-bps", 100)
	v.SetDefault("default-slippage-bps", 100)

	// Pool creation
	v.SetDefault("dlmm-preset-parameter", "")
	v.SetDefault("dlmm-bin-step", 100)
	v.SetDefault("position-width", 69)
	v.SetDefault("cp-fee-bps", 25)

	// Storage
	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("clickhouse-addr", "")
	v.SetDefault("clickhouse-database", "rift")
	v.SetDefault("clickhouse-username", "default")
	v.SetDefault("clickhouse-password", "")

	// External services
	v.SetDefault("oracle-url", "https://lite-api.jup.ag/price/v3")
	v.SetDefault("oracle-api-key", "")
	v.SetDefault("bundle-url", "")
	v.SetDefault("bundle-tip-lamports", 10_000)
	v.SetDefault("bundle-tip-account", "")

	v.SetDefault("wallet-private-key", "")

	// API
	v.SetDefault("api-addr", ":8090")
	v.SetDefault("api-key", "")
	v.SetDefault("dev-mode", false)
	v.SetDefault("quote-rate-limit", 5.0)
	v.SetDefault("quote-burst", 10)

	// Logging
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("log-output", "stdout")
	v.SetDefault("log-max-size", 100)
	v.SetDefault("log-max-backups", 5)
	v.SetDefault("log-max-age", 30)
	v.SetDefault("log-compress", true)
}

// Validate rejects combinations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCUrl) == "" {
		return fmt.Errorf("rpc-url is required")
	}
	if c.ConfirmInterval <= 0 {
		return fmt.Errorf("confirm-interval must be positive")
	}
	if c.ConfirmAttempts <= 0 {
		return fmt.Errorf("confirm-attempts must be positive")
	}
	if c.BalanceFreshness <= 0 {
		return fmt.Errorf("balance-freshness must be positive")
	}
	if c.BalanceRecheckAttempts <= 0 {
		return fmt.Errorf("balance-recheck-attempts must be positive")
	}
	if c.FallbackHaircutBps > 10_000 {
		return fmt.Errorf("fallback-haircut-bps must be <= 10000")
	}
	if c.DefaultSlippageBps > 10_000 {
		return fmt.Errorf("default-slippage-bps must be <= 10000")
	}
	if c.PositionWidth < 1 || c.PositionWidth > 70 {
		return fmt.Errorf("position-width must be within [1, 70]")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0")
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unsupported commitment %q", c.Commitment)
	}
	return nil
}
