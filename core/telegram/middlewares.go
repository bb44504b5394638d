package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/ratelimit"
	"github.com/m3rciful/orderbot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain for the bot.
func DefaultMiddlewares(limiter *ratelimit.Limiter, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
	}
	if limiter != nil {
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use:  middleware.RateLimitMiddleware(middleware.RateLimitOptions{Limiter: limiter, OnLimited: onLimited}),
		})
	}
	return mws
}
