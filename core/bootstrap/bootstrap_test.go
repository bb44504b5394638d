package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/session"
)

func noLogger(*config.Config) error { return nil }

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.StaticDir = t.TempDir()
	cfg.Archive.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Normalize(cfg))
	return cfg
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{LoggerInit: noLogger})
	assert.Error(t, err)
}

func TestRunLoggerFailure(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     testConfig(t, nil),
		LoggerInit: func(*config.Config) error { return errors.New("no log dir") },
	})
	assert.ErrorContains(t, err, "logger init failed")
}

func TestRunDefaultsToMemoryAndWhatsApp(t *testing.T) {
	app, err := Run(context.Background(), Options{Config: testConfig(t, nil), LoggerInit: noLogger})
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &session.Memory{}, app.Store)
	assert.NotNil(t, app.WhatsApp)
	assert.Same(t, app.WhatsApp, app.Sender)
	assert.Nil(t, app.Bot)
	assert.Nil(t, app.Telegram)
	assert.Equal(t, config.ProviderUPI, app.Gateway.Name())
	assert.Equal(t, 3, app.Catalog.Len())
	assert.Equal(t, ":3000", app.Server.Addr())

	rec := httptest.NewRecorder()
	app.HTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OilFacts WhatsApp Bot is running", rec.Body.String())
}

func TestRunRazorpayProvider(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Payment.KeyID = "rzp_test"
		c.Payment.KeySecret = "secret"
	})
	app, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	require.NoError(t, err)
	assert.Equal(t, config.ProviderRazorpay, app.Gateway.Name())
}

func TestRunRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, func(c *config.Config) {
		c.Store.Driver = config.DriverRedis
		c.Redis.Addr = mr.Addr()
	})
	app, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	require.NoError(t, err)
	defer app.Close()

	require.IsType(t, &session.Redis{}, app.Store)
	_, err = app.Store.GetOrCreate(context.Background(), "919876543210")
	require.NoError(t, err)
}

func TestRunRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := testConfig(t, func(c *config.Config) {
		c.Store.Driver = config.DriverRedis
		c.Redis.Addr = addr
	})
	_, err := Run(context.Background(), Options{Config: cfg, LoggerInit: noLogger})
	assert.ErrorContains(t, err, "redis initialization failed")
}

func postgresConfig(t *testing.T) *config.Config {
	return testConfig(t, func(c *config.Config) {
		c.Store.Driver = config.DriverPostgres
		c.Archive.Driver = config.DriverPostgres
		c.Database.Name = "orderbot"
	})
}

func TestRunPostgresStore(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")

	var migrated bool
	app, err := Run(context.Background(), Options{
		Config:     postgresConfig(t),
		LoggerInit: noLogger,
		Connect:    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error) { return db, nil },
		Migrate: func(_ context.Context, cfg config.DatabaseConfig) error {
			migrated = cfg.Name == "orderbot"
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Same(t, db, app.DB)
	assert.IsType(t, &session.Postgres{}, app.Store)

	mock.ExpectClose()
	app.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationFailureClosesDB(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	_, err = Run(context.Background(), Options{
		Config:     postgresConfig(t),
		LoggerInit: noLogger,
		Connect:    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error) { return sqlx.NewDb(raw, "postgres"), nil },
		Migrate:    func(context.Context, config.DatabaseConfig) error { return errors.New("dirty database") },
	})
	assert.ErrorContains(t, err, "migrations failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunConnectFailure(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     postgresConfig(t),
		LoggerInit: noLogger,
		Connect: func(context.Context, config.DatabaseConfig) (*sqlx.DB, error) {
			return nil, errors.New("connection refused")
		},
	})
	assert.ErrorContains(t, err, "database initialization failed")
}

func TestRunTelegramChannel(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Messaging.Channel = config.ChannelTelegram
		c.Telegram.Token = "123:abc"
	})
	var built bool
	app, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		NewBot: func(*config.Config) (*tele.Bot, error) {
			built = true
			return tele.NewBot(tele.Settings{Offline: true})
		},
	})
	require.NoError(t, err)
	assert.True(t, built)
	assert.NotNil(t, app.Bot)
	assert.NotNil(t, app.Telegram)
	assert.NotNil(t, app.Sender)
	assert.Nil(t, app.WhatsApp)
}

func TestRunTelegramWithoutTokenIsDegraded(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Messaging.Channel = config.ChannelTelegram })
	app, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		NewBot: func(*config.Config) (*tele.Bot, error) {
			t.Fatal("bot must not be built without a token")
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, app.Bot)
	assert.Nil(t, app.Sender)
}
