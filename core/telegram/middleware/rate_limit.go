package middleware

import (
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/ratelimit"
	tghelpers "github.com/m3rciful/orderbot/core/telegram/helpers"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Limiter   *ratelimit.Limiter
	OnLimited tele.HandlerFunc
}

// RateLimitMiddleware drops updates from chats that exceed the limiter's
// budget. A nil limiter lets everything through.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || opts.Limiter == nil {
				return next(c)
			}
			if opts.Limiter.Allow("tg:" + strconv.FormatInt(chat.ID, 10)) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit", slog.String("status", "rate_limited"))
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
