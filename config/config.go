package config

import (
	"os"
	"strings"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/jobs"
	"github.com/DomeLiquid/payin/payin"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAYIN_DATABASE_DSN.
const EnvPrefix = "PAYIN"

type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Poller   PollerConfig   `yaml:"poller" mapstructure:"poller"`
	Limits   LimitsConfig   `yaml:"limits" mapstructure:"limits"`
	Invoice  InvoiceConfig  `yaml:"invoice" mapstructure:"invoice"`
	Fees     FeesConfig     `yaml:"fees" mapstructure:"fees"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

type DatabaseConfig struct {
	// Driver is mysql or sqlite.
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	JobsKey  string `yaml:"jobs_key" mapstructure:"jobs_key"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type PollerConfig struct {
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
	Grace       time.Duration `yaml:"grace" mapstructure:"grace"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
}

type LimitsConfig struct {
	MaxPendingPayIns         int64 `yaml:"max_pending_payins" mapstructure:"max_pending_payins"`
	MaxPendingDirectPayments int64 `yaml:"max_pending_direct_payments" mapstructure:"max_pending_direct_payments"`
}

type InvoiceConfig struct {
	Expiry     time.Duration `yaml:"expiry" mapstructure:"expiry"`
	HoldExpiry time.Duration `yaml:"hold_expiry" mapstructure:"hold_expiry"`
}

type FeesConfig struct {
	ZapRoutingFeePct            int64 `yaml:"zap_routing_fee_pct" mapstructure:"zap_routing_fee_pct"`
	BountyRoutingFeePct         int64 `yaml:"bounty_routing_fee_pct" mapstructure:"bounty_routing_fee_pct"`
	ProxyRoutingFeePct          int64 `yaml:"proxy_routing_fee_pct" mapstructure:"proxy_routing_fee_pct"`
	AnonItemMultiplier          int64 `yaml:"anon_item_multiplier" mapstructure:"anon_item_multiplier"`
	MediaFeeSatsPerMB           int64 `yaml:"media_fee_sats_per_mb" mapstructure:"media_fee_sats_per_mb"`
	WithdrawalMaxFeeDefaultSats int64 `yaml:"withdrawal_max_fee_default_sats" mapstructure:"withdrawal_max_fee_default_sats"`
}

// LogConfig picks the zerolog level and a console or json Format.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:payin.db?_foreign_keys=on",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:    "127.0.0.1:6379",
			JobsKey: jobs.DefaultPrefix,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Poller: PollerConfig{
			Interval:    5 * time.Second,
			Grace:       30 * time.Second,
			Concurrency: 4,
			BatchSize:   100,
		},
		Limits: LimitsConfig{
			MaxPendingPayIns:         core.MAX_PENDING_PAYINS,
			MaxPendingDirectPayments: core.MAX_PENDING_DIRECT_PAYINS,
		},
		Invoice: InvoiceConfig{
			Expiry:     core.DEFAULT_INVOICE_EXPIRY,
			HoldExpiry: core.DEFAULT_HOLD_EXPIRY,
		},
		Fees: FeesConfig{
			ZapRoutingFeePct:            core.ZAP_ROUTING_FEE_PCT,
			BountyRoutingFeePct:         core.BOUNTY_ROUTING_FEE_PCT,
			ProxyRoutingFeePct:          core.PROXY_ROUTING_FEE_PCT,
			AnonItemMultiplier:          core.ANON_ITEM_FEE_MULTIPLIER,
			MediaFeeSatsPerMB:           core.MEDIA_FEE_SATS_PER_UNIT,
			WithdrawalMaxFeeDefaultSats: core.WITHDRAWAL_MAX_FEE_SATS,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load starts from Default, merges the YAML file at path when one is given and
// applies PAYIN_* environment overrides last.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can override
// keys the file does not mention.
func registerDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"database.driver":            cfg.Database.Driver,
		"database.dsn":               cfg.Database.DSN,
		"database.max_idle_conns":    cfg.Database.MaxIdleConns,
		"database.max_open_conns":    cfg.Database.MaxOpenConns,
		"database.conn_max_lifetime": cfg.Database.ConnMaxLifetime,

		"redis.addr":     cfg.Redis.Addr,
		"redis.password": cfg.Redis.Password,
		"redis.db":       cfg.Redis.DB,
		"redis.jobs_key": cfg.Redis.JobsKey,

		"server.addr":          cfg.Server.Addr,
		"server.read_timeout":  cfg.Server.ReadTimeout,
		"server.write_timeout": cfg.Server.WriteTimeout,

		"poller.interval":    cfg.Poller.Interval,
		"poller.grace":       cfg.Poller.Grace,
		"poller.concurrency": cfg.Poller.Concurrency,
		"poller.batch_size":  cfg.Poller.BatchSize,

		"limits.max_pending_payins":          cfg.Limits.MaxPendingPayIns,
		"limits.max_pending_direct_payments": cfg.Limits.MaxPendingDirectPayments,

		"invoice.expiry":      cfg.Invoice.Expiry,
		"invoice.hold_expiry": cfg.Invoice.HoldExpiry,

		"fees.zap_routing_fee_pct":             cfg.Fees.ZapRoutingFeePct,
		"fees.bounty_routing_fee_pct":          cfg.Fees.BountyRoutingFeePct,
		"fees.proxy_routing_fee_pct":           cfg.Fees.ProxyRoutingFeePct,
		"fees.anon_item_multiplier":            cfg.Fees.AnonItemMultiplier,
		"fees.media_fee_sats_per_mb":           cfg.Fees.MediaFeeSatsPerMB,
		"fees.withdrawal_max_fee_default_sats": cfg.Fees.WithdrawalMaxFeeDefaultSats,

		"log.level":  cfg.Log.Level,
		"log.format": cfg.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("unsupported log format %q", c.Log.Format)
	}
	for name, pct := range map[string]int64{
		"zap":    c.Fees.ZapRoutingFeePct,
		"bounty": c.Fees.BountyRoutingFeePct,
		"proxy":  c.Fees.ProxyRoutingFeePct,
	} {
		if pct < 0 || pct >= 100 {
			return errors.Errorf("%s routing fee %d%% out of range", name, pct)
		}
	}
	if c.Poller.Interval <= 0 {
		return errors.New("poller interval must be positive")
	}
	return nil
}

// EngineOptions maps the tunables onto the settlement engine.
func (c *Config) EngineOptions() payin.Options {
	return payin.Options{
		MaxPendingPayIns:         c.Limits.MaxPendingPayIns,
		MaxPendingDirectPayments: c.Limits.MaxPendingDirectPayments,
		InvoiceExpiry:            c.Invoice.Expiry,
		HoldExpiry:               c.Invoice.HoldExpiry,
		ZapRoutingFeePct:         c.Fees.ZapRoutingFeePct,
		BountyRoutingFeePct:      c.Fees.BountyRoutingFeePct,
		ProxyRoutingFeePct:       c.Fees.ProxyRoutingFeePct,
		AnonItemMultiplier:       c.Fees.AnonItemMultiplier,
		MediaFeeSatsPerMB:        c.Fees.MediaFeeSatsPerMB,
		WithdrawalMaxFeeSats:     c.Fees.WithdrawalMaxFeeDefaultSats,
	}
}

func (c *Config) PollerConfig() payin.PollerConfig {
	return payin.PollerConfig{
		Interval:    c.Poller.Interval,
		Grace:       c.Poller.Grace,
		Concurrency: c.Poller.Concurrency,
		BatchSize:   c.Poller.BatchSize,
	}
}
