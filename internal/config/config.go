package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SPONSORPAY"

type Config struct {
	App       App       `mapstructure:"app"`
	Solana    Solana    `mapstructure:"solana"`
	Storage   Storage   `mapstructure:"storage"`
	Redis     Redis     `mapstructure:"redis"`
	Reconcile Reconcile `mapstructure:"reconcile"`
}

type App struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

type Solana struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	SponsorSecret   string        `mapstructure:"sponsor_secret"`  // base58, JSON 数组或逗号分隔的十进制
	SponsorKeyfile  string        `mapstructure:"sponsor_keyfile"` // solana-keygen 生成的 JSON 文件
	Commitment      string        `mapstructure:"commitment"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ExplorerCluster string        `mapstructure:"explorer_cluster"`

	// 允许 sender 等于代付账户时由服务端直接转出代付账户的资金，默认关闭
	AllowSponsorFunded bool `mapstructure:"allow_sponsor_funded"`
}

type Storage struct {
	Driver     string `mapstructure:"driver"` // sqlite 或 mysql
	SQLitePath string `mapstructure:"sqlite_path"`
	MySQL      MySQL  `mapstructure:"mysql"`
}

type MySQL struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type Redis struct {
	URL            string        `mapstructure:"url"` // 为空时关闭幂等
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type Reconcile struct {
	Interval    time.Duration `mapstructure:"interval"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
	BatchSize   int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_pretty", false)
	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.sponsor_secret", "")
	v.SetDefault("solana.sponsor_keyfile", "")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.poll_interval", time.Second)
	v.SetDefault("solana.explorer_cluster", "devnet")
	v.SetDefault("solana.allow_sponsor_funded", false)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "sponsorpay.db")
	v.SetDefault("storage.mysql.host", "")
	v.SetDefault("storage.mysql.port", 3306)
	v.SetDefault("storage.mysql.user", "")
	v.SetDefault("storage.mysql.password", "")
	v.SetDefault("storage.mysql.dbname", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)
	v.SetDefault("reconcile.interval", 30*time.Second)
	v.SetDefault("reconcile.expire_after", 2*time.Minute)
	v.SetDefault("reconcile.batch_size", 50)
}

// Load reads config.yaml from the working directory (or the explicit file) and
// applies SPONSORPAY_* environment overrides, e.g. SPONSORPAY_SOLANA_SPONSOR_SECRET.
// A missing config file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted. The sponsor key is optional
// here: without it the service still starts and the transfer endpoint answers 500.
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return errors.New("solana.rpc_url is empty in config")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment must be processed, confirmed or finalized, got %q", c.Solana.Commitment)
	}
	if c.Solana.ConfirmTimeout <= 0 || c.Solana.PollInterval <= 0 {
		return errors.New("solana.confirm_timeout and solana.poll_interval must be positive")
	}
	if c.Reconcile.Interval <= 0 || c.Reconcile.BatchSize <= 0 {
		return errors.New("reconcile.interval and reconcile.batch_size must be positive")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	return nil
}

// Address returns the gin listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
