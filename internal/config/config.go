package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"liquidity-alerts/internal/logging"
)

// ErrMissingWebhook is returned when no webhook URL could be resolved.
var ErrMissingWebhook = errors.New("alerting.webhook_url (DISCORD_WEBHOOK_URL) must be configured")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Market    MarketConfig    `mapstructure:"market"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Infisical InfisicalConfig `mapstructure:"infisical"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig covers on-chain data access.
type ChainConfig struct {
	Name           string        `mapstructure:"name"`
	ChainID        int64         `mapstructure:"chain_id"`
	RPCURLs        []string      `mapstructure:"rpc_urls"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketConfig selects the monitored lending market.
type MarketConfig struct {
	Name          string   `mapstructure:"name"`
	Symbol        string   `mapstructure:"symbol"`
	ThresholdUSD  float64  `mapstructure:"threshold_usd"`
	Addresses     []string `mapstructure:"addresses"`
	OracleAddress string   `mapstructure:"oracle_address"`
}

// VaultConfig selects the monitored vault.
type VaultConfig struct {
	Name           string        `mapstructure:"name"`
	Symbol         string        `mapstructure:"symbol"`
	ThresholdUSD   float64       `mapstructure:"threshold_usd"`
	APIURL         string        `mapstructure:"api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetryConfig bounds upstream fetch retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// AlertingConfig defines webhook delivery.
type AlertingConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	FooterText string        `mapstructure:"footer_text"`
}

// RedisConfig 描述告警冷却使用的 Redis 连接；url 为空时关闭冷却。
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
	ListenAddr     string `mapstructure:"listen_addr"`
}

// SchedulerConfig governs watch mode cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// InfisicalConfig holds machine identity credentials for secret lookup.
type InfisicalConfig struct {
	SiteURL      string `mapstructure:"site_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	ProjectID    string `mapstructure:"project_id"`
	Environment  string `mapstructure:"environment"`
}

// Enabled reports whether Infisical credentials are complete.
func (c InfisicalConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.ProjectID != ""
}

// Load builds configuration from file, environment, defaults, and Infisical.
func Load(path string) (*Config, error) {
	return load(path, fetchInfisicalSecret)
}

func load(path string, lookup secretLookup) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIQUIDITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("alerting.webhook_url", "LIQUIDITY_ALERTING_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")

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

	if cfg.Alerting.WebhookURL == "" && cfg.Infisical.Enabled() && lookup != nil {
		secret, err := lookup(cfg.Infisical, webhookSecretKey)
		if err != nil {
			return nil, fmt.Errorf("resolve webhook url from infisical: %w", err)
		}
		cfg.Alerting.WebhookURL = secret
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
	v.SetDefault("app.name", "liquidity-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chain.name", "base")
	v.SetDefault("chain.chain_id", int64(8453))
	v.SetDefault("chain.rpc_urls", []string{"https://mainnet.base.org"})
	v.SetDefault("chain.request_timeout", "15s")

	v.SetDefault("market.name", "USDC Market")
	v.SetDefault("market.symbol", "USDC")
	v.SetDefault("market.threshold_usd", 4_000_000.0)
	v.SetDefault("market.addresses", []string{"0xEdc817A28E8B93B03976FBd4a3dDBc9f7D176c22"})
	v.SetDefault("market.oracle_address", "0xEC942bE8A8114bFD0396A5052c36027f2cA6a9d0")

	v.SetDefault("vault.name", "USDC Vault")
	v.SetDefault("vault.symbol", "mwUSDC")
	v.SetDefault("vault.threshold_usd", 29_000_000.0)
	v.SetDefault("vault.api_url", "https://blue-api.morpho.org/graphql")
	v.SetDefault("vault.request_timeout", "15s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", "2s")

	v.SetDefault("alerting.username", "Liquidity Monitor")
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.cooldown", "0s")
	v.SetDefault("alerting.footer_text", "liquidity-alerts")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "liquidity_alerts")
	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("infisical.site_url", "https://app.infisical.com")
	v.SetDefault("infisical.client_id", "")
	v.SetDefault("infisical.client_secret", "")
	v.SetDefault("infisical.project_id", "")
	v.SetDefault("infisical.environment", "prod")
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
	if strings.TrimSpace(c.Alerting.WebhookURL) == "" {
		return ErrMissingWebhook
	}
	if c.Market.Name == "" || c.Vault.Name == "" {
		return fmt.Errorf("market.name and vault.name must be configured")
	}
	if c.Market.Name == c.Vault.Name {
		return fmt.Errorf("market.name and vault.name must differ")
	}
	if c.Market.Symbol == "" || c.Vault.Symbol == "" {
		return fmt.Errorf("market.symbol and vault.symbol must be configured")
	}
	if c.Market.ThresholdUSD < 0 || c.Vault.ThresholdUSD < 0 {
		return fmt.Errorf("threshold_usd cannot be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be greater than zero")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Cooldown > 0 && c.Redis.URL == "" {
		return fmt.Errorf("alerting.cooldown 需要配置 redis.url")
	}
	return nil
}

// Thresholds maps each source name to its liquidity floor.
func (c *Config) Thresholds() map[string]float64 {
	return map[string]float64{
		c.Market.Name: c.Market.ThresholdUSD,
		c.Vault.Name:  c.Vault.ThresholdUSD,
	}
}
