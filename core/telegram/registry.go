package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/logger"
)

// Command is a bot command that stands in for a conversation keyword.
type Command struct {
	Description string
	// Keyword is the text the conversation engine receives instead of the command.
	Keyword string
	Hidden  bool
}

// Registry maps slash commands onto conversation keywords.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// DefaultRegistry registers the shop commands shown in the Telegram menu.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterCommand("/start", Command{Description: "Start a new order", Keyword: "hi"})
	reg.RegisterCommand("/menu", Command{Description: "Show the product list", Keyword: "menu"})
	reg.RegisterCommand("/help", Command{Description: "How ordering works", Keyword: "help"})
	reg.RegisterCommand("/cancel", Command{Description: "Cancel the current order", Keyword: "cancel"})
	reg.RegisterCommand("/confirm", Command{Description: "Confirm the order summary", Keyword: "confirm", Hidden: true})
	return reg
}

// RegisterCommand adds a new command. Invalid or duplicate names are skipped.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	if r == nil || name == "" || cmd.Keyword == "" || cmd.Description == "" {
		logger.Warn(context.Background(), "tg", "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if name[0] != '/' {
		logger.Warn(context.Background(), "tg", "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(context.Background(), "tg", "register.command.duplicate", slog.String("name", name))
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns the commands sorted by name, optionally without hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Names returns the registered command endpoints, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keyword translates text that starts with a known command into its keyword.
// A "@botname" suffix is ignored. Other text is returned unchanged.
func (r *Registry) Keyword(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return text
	}
	name := strings.Fields(trimmed)[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	if cmd, ok := r.commands[strings.ToLower(name)]; ok {
		return cmd.Keyword
	}
	return text
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.Error(ctx, "tg", "register.commands",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
