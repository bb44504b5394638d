package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/netutil"
	tghelpers "github.com/m3rciful/orderbot/core/telegram/helpers"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config   *config.Config
	Registry *Registry

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, bot *tele.Bot) error
}

// NewBot builds a bot bound to the configured poller. The bot's API client
// retries transient transport failures.
func NewBot(cfg *config.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(PollerOptionsFrom(cfg)),
		Client: netutil.BuildHTTPClient(netutil.ClientOptions{}),
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.Error(ctx, "tg", "bot.error",
				slog.String("status", "fail"),
				slog.String("err", netutil.SanitizeError(err)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// Run registers middleware and routes on bot and serves updates until ctx is done.
func Run(ctx context.Context, bot *tele.Bot, opts RunOptions) error {
	if bot == nil {
		return errors.New("telegram: nil bot")
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}

	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	default:
		timeoutSec := defaultLongPollTimeout
		if cfg.Telegram.LongPollTimeoutSeconds > 0 {
			timeoutSec = cfg.Telegram.LongPollTimeoutSeconds
		}
		logger.Info(ctx, "tg", "mode",
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeLongpoll),
			slog.Int("timeout_seconds", timeoutSec),
		)
		if !opts.DisableWebhookCleanup {
			err := bot.RemoveWebhook(false)
			level := slog.LevelInfo
			attrs := []slog.Attr{slog.String("status", logger.Status(err))}
			if err != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("err", netutil.SanitizeError(err)))
			}
			logger.Event(ctx, "tg", level, "delete_webhook", attrs...)
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	InitBotCommands(ctx, bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, bot); err != nil {
			return err
		}
	}

	start := time.Now()
	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	logger.Info(context.WithoutCancel(ctx), "tg", "bot.stopped",
		slog.String("status", "ok"),
		slog.Duration("uptime", logger.Took(start)),
	)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
