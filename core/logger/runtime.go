package logger

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID       contextKey = "rid"
	ctxChannel   contextKey = "channel"
	ctxCustomer  contextKey = "customer_id"
	ctxMessageID contextKey = "message_id"
	ctxLogger    contextKey = "logger"
	ctxHandler   contextKey = "handler"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxRID)
}

// WithEventMeta attaches inbound event identifiers to context.
func WithEventMeta(ctx context.Context, channel, customerID, messageID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if channel != "" {
		ctx = context.WithValue(ctx, ctxChannel, channel)
	}
	if customerID != "" {
		ctx = context.WithValue(ctx, ctxCustomer, customerID)
	}
	if messageID != "" {
		ctx = context.WithValue(ctx, ctxMessageID, messageID)
	}
	return ctx
}

// ChannelFrom extracts the messaging channel from context.
func ChannelFrom(ctx context.Context) string {
	return stringValue(ctx, ctxChannel)
}

// CustomerFrom extracts the customer identifier from context.
func CustomerFrom(ctx context.Context) string {
	return stringValue(ctx, ctxCustomer)
}

// MessageIDFrom extracts the inbound message identifier from context.
func MessageIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxMessageID)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringValue(ctx, ctxHandler)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// NewRID returns a fresh correlation identifier.
func NewRID() string {
	return uuid.NewString()
}

// CompactRID shortens a UUID correlation id to its first group for KV output.
// Anything that is not a UUID is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	id, err := uuid.Parse(rid)
	if err != nil {
		return rid
	}
	return strings.SplitN(id.String(), "-", 2)[0]
}

// MaskCustomer hides all but the last four characters of a customer id.
func MaskCustomer(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return id
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
