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

	"github.com/m3rciful/orderbot/core/archive"
	"github.com/m3rciful/orderbot/core/catalog"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/dispatch"
	"github.com/m3rciful/orderbot/core/httpapi"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/media"
	"github.com/m3rciful/orderbot/core/messaging"
	"github.com/m3rciful/orderbot/core/netutil"
	"github.com/m3rciful/orderbot/core/notify"
	"github.com/m3rciful/orderbot/core/outbox"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/qr"
	"github.com/m3rciful/orderbot/core/ratelimit"
	"github.com/m3rciful/orderbot/core/session"
	"github.com/m3rciful/orderbot/core/telegram"
)

// App holds the wired components. Optional members are nil when their
// channel or driver is not selected.
type App struct {
	Config *config.Config

	DB    *sqlx.DB
	Redis redis.UniversalClient
	Bot   *tele.Bot

	Catalog    *catalog.Catalog
	Engine     *conversation.Engine
	Store      session.Store
	Sender     messaging.Sender
	WhatsApp   *messaging.WhatsApp
	Gateway    payment.Gateway
	Outbox     *outbox.Outbox
	Limiter    *ratelimit.Limiter
	Dispatcher *dispatch.Dispatcher
	Telegram   *telegram.Handler
	HTTP       http.Handler
	Server     *httpapi.Server
}

func (a *App) wire(opts Options) error {
	cfg := a.Config
	client := opts.HTTPClient
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{})
	}

	cat, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("bootstrap: catalog: %w", err)
	}
	a.Catalog = cat
	a.Engine = conversation.New(cat, conversation.Options{
		ShopName:       cfg.Shop.Name,
		Currency:       cfg.Shop.Currency,
		CurrencySymbol: cfg.Shop.CurrencySymbol,
		Unit:           cfg.Shop.Unit,
		BaseURL:        cfg.Shop.BaseURL,
		OrderPrefix:    cfg.Shop.OrderPrefix,
		SupportEmail:   cfg.Shop.SupportEmail,
	})

	if a.Store, err = a.buildStore(); err != nil {
		return err
	}

	var fetcher media.Fetcher
	switch cfg.Messaging.Channel {
	case config.ChannelTelegram:
		if cfg.Telegram.Token != "" {
			newBot := opts.NewBot
			if newBot == nil {
				newBot = telegram.NewBot
			}
			bot, err := newBot(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			a.Bot = bot
			a.Sender = messaging.NewTelegram(bot)
			fetcher = media.NewTelegram(bot)
		}
	default:
		a.WhatsApp = messaging.NewWhatsApp(cfg.WhatsApp, client)
		a.Sender = a.WhatsApp
		fetcher = media.NewWhatsApp(cfg.WhatsApp, client)
	}

	upi := payment.NewUPI(cfg.Payment, cfg.Shop.Name)
	a.Gateway = upi
	var razorpayKey string
	if cfg.Payment.Provider == config.ProviderRazorpay {
		rzp := payment.NewRazorpay(cfg.Payment, cfg.Shop.Unit, client)
		a.Gateway = rzp
		razorpayKey = rzp.KeyID()
	}

	a.Outbox = outbox.New(outbox.Options{
		QueueSize:    cfg.Outbox.QueueSize,
		Workers:      cfg.Outbox.Workers,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryBackoff: cfg.Outbox.RetryBackoff,
		MaxDuration:  cfg.Outbox.MaxDuration,
	})
	a.Limiter = ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)

	// Telegram throttles in its middleware so limited chats can be told why.
	dispatchLimiter := a.Limiter
	if a.Bot != nil {
		dispatchLimiter = nil
	}
	notifier := notify.NewSMTP(cfg.Email, notify.Options{
		ShopName:       cfg.Shop.Name,
		CurrencySymbol: cfg.Shop.CurrencySymbol,
		Unit:           cfg.Shop.Unit,
	})
	a.Dispatcher = dispatch.New(dispatch.Deps{
		Engine:   a.Engine,
		Store:    a.Store,
		Sender:   a.Sender,
		Gateway:  a.Gateway,
		Media:    fetcher,
		Notifier: notifier,
		Archiver: a.buildArchiver(),
		Queue:    a.Outbox,
		Limiter:  dispatchLimiter,
	})
	if a.Bot != nil {
		a.Telegram = telegram.NewHandler(a.Dispatcher, telegram.DefaultRegistry())
	}

	a.HTTP = httpapi.NewRouter(httpapi.Options{
		ShopName:       cfg.Shop.Name,
		Currency:       cfg.Shop.Currency,
		CurrencySymbol: cfg.Shop.CurrencySymbol,
		Unit:           cfg.Shop.Unit,
		StaticDir:      cfg.HTTP.StaticDir,
		VerifyToken:    cfg.WhatsApp.VerifyToken,
		RazorpayKeyID:  razorpayKey,
		Diagnostics:    cfg.HTTP.Diagnostics,
	}, httpapi.Deps{
		Dispatcher: a.Dispatcher,
		Store:      a.Store,
		Sender:     a.Sender,
		UPI:        upi,
		QR:         qr.NewRenderer(cfg.HTTP.StaticDir, cfg.Shop.BaseURL),
		Limiter:    ratelimit.New(cfg.RateLimit.PerSecond*10, cfg.RateLimit.Burst*10),
	})
	a.Server = httpapi.NewServer(cfg.HTTP.Listen, cfg.HTTP.Port, a.HTTP)

	logger.Info(context.Background(), "app", "wired",
		slog.String("status", "ok"),
		slog.String("channel", cfg.Messaging.Channel),
		slog.String("store", cfg.Store.Driver),
		slog.String("payment", a.Gateway.Name()),
		slog.String("archive", cfg.Archive.Driver),
		slog.Int("catalog_items", cat.Len()),
	)
	return nil
}

func (a *App) buildStore() (session.Store, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if a.DB == nil {
			return nil, errors.New("bootstrap: postgres store without database")
		}
		return session.NewPostgres(a.DB), nil
	case config.DriverRedis:
		if a.Redis == nil {
			return nil, errors.New("bootstrap: redis store without client")
		}
		return session.NewRedis(a.Redis, session.RedisOptions{
			Prefix:  cfg.Redis.Prefix,
			IdleTTL: cfg.Store.IdleTTL,
		}), nil
	default:
		return session.NewMemory(), nil
	}
}

func (a *App) buildArchiver() archive.Archiver {
	switch a.Config.Archive.Driver {
	case config.DriverPostgres:
		if a.DB != nil {
			return archive.NewPostgres(a.DB)
		}
	case config.DriverFile:
		return archive.NewFile(a.Config.Archive.Dir)
	}
	return archive.None{}
}

// Close releases connections opened by Run.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			logger.Warn(context.Background(), "db", "db.close", slog.String("status", "fail"), slog.String("err", err.Error()))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn(context.Background(), "store", "redis.close", slog.String("status", "fail"), slog.String("err", err.Error()))
		}
	}
}
