package main

import (
	"context"
	"os"
	"strings"

	"github.com/DomeLiquid/payin/config"
	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/jobs"
	"github.com/DomeLiquid/payin/lnsim"
	"github.com/DomeLiquid/payin/notify"
	"github.com/DomeLiquid/payin/payin"
	"github.com/DomeLiquid/payin/store"
	"github.com/DomeLiquid/payin/wallet"
	"github.com/facebookgo/clock"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

// deps is everything a command needs, built from the loaded config.
type deps struct {
	cfg       *config.Config
	log       *zerolog.Logger
	db        *gorm.DB
	store     *store.Store
	rds       *redis.Client
	scheduler *jobs.RedisScheduler
	engine    *payin.Engine
	closers   []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.log.Warn().Err(err).Msg("close")
		}
	}
}

func loadConfig(cctx *cli.Context) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newLogger(cfg config.LogConfig) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log = log.Level(level).With().Timestamp().Str("service", "payind").Logger()
	return &log, nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		db, err = store.OpenMysql(cfg.DSN)
	case "sqlite":
		db, err = store.OpenSqlite(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	if cfg.Driver == "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// setup opens the database and redis and wires the engine. The Lightning node
// is the in-process simulator.
func setup(cctx *cli.Context) (*deps, error) {
	cfg, log, err := loadConfig(cctx)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: log}

	d.db, err = openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() error {
		sqlDB, err := d.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	d.store = store.New(d.db)

	d.rds = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	d.closers = append(d.closers, d.rds.Close)
	if err := d.rds.Ping(cctx.Context).Err(); err != nil {
		d.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
	}
	d.scheduler = jobs.NewRedisScheduler(d.rds, cfg.Redis.JobsKey)

	clk := clock.New()
	node := lnsim.New(clk)
	dir := wallet.NewDirectory(d.store).Register(node.Receiver(), core.WalletProtocolNWC, core.WalletProtocolLNURL)
	d.engine = payin.NewEngine(clk, log, d.store, node, dir, d.scheduler, notify.New(clk, d.store), cfg.EngineOptions())
	return d, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	if err := store.Migrate(ctx, db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return errors.Wrap(store.Seed(ctx, db), "seed")
}
