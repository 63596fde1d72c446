package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Renderer    RendererConfig    `mapstructure:"renderer"`
	Facilitator FacilitatorConfig `mapstructure:"facilitator"`
	Chain       ChainConfig       `mapstructure:"chain"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Invoices    InvoicesConfig    `mapstructure:"invoices"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // file | redis
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

type RendererConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type FacilitatorConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type ChainConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	LookbackBlocks int64  `mapstructure:"lookback_blocks"`
}

type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	Cap    int           `mapstructure:"cap"`
}

type AdmissionConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type PaymentConfig struct {
	Network       string `mapstructure:"network"`
	PayTo         string `mapstructure:"pay_to"`
	Asset         string `mapstructure:"asset"`
	PriceAtomic   int64  `mapstructure:"price_atomic"`
	TokenDecimals int32  `mapstructure:"token_decimals"`
}

type InvoicesConfig struct {
	TTL               time.Duration `mapstructure:"ttl"`
	ToleranceAtomic   int64         `mapstructure:"tolerance_atomic"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (RENDERGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (RENDERGW_*)
	v.SetEnvPrefix("RENDERGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
