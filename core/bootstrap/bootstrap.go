// Package bootstrap assembles the application from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	coredatabase "github.com/m3rciful/orderbot/core/database"
	"github.com/m3rciful/orderbot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks select the production
// implementations.
type Options struct {
	Config *config.Config

	LoggerInit func(*config.Config) error
	Connect    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, config.DatabaseConfig) error
	Redis      func(context.Context, config.RedisConfig) (redis.UniversalClient, error)
	NewBot     func(*config.Config) (*tele.Bot, error)

	// HTTPClient is shared by the WhatsApp, media and Razorpay clients.
	HTTPClient *http.Client
}

// Run initializes the logger and infrastructure, then wires every component.
func Run(ctx context.Context, opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	for _, w := range config.Warnings(cfg) {
		logger.Warn(ctx, "app", "config.degraded", slog.String("status", "degraded"), slog.String("reason", w))
	}

	app := &App{Config: cfg}
	if cfg.NeedsDatabase() {
		db, err := openDatabase(ctx, opts)
		if err != nil {
			return nil, err
		}
		app.DB = db
	}
	if cfg.Store.Driver == config.DriverRedis {
		open := opts.Redis
		if open == nil {
			open = OpenRedis
		}
		rdb, err := open(ctx, cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		app.Redis = rdb
	}

	if err := app.wire(opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func openDatabase(ctx context.Context, opts Options) (*sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	db, err := connect(ctx, opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if err := migrate(ctx, opts.Config.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	return db, nil
}

// OpenRedis connects to redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "store", "redis.connect", slog.String("status", "ok"), slog.String("addr", cfg.Addr))
	return rdb, nil
}
