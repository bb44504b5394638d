// Package messaging delivers bot replies over the customer's chat channel.
package messaging

import (
	"context"
	"regexp"
)

// Message is an outbound chat message. Text uses *bold* and _italic_ markup.
type Message struct {
	Text string
	// QuickReplies are suggested answers, rendered as buttons where supported.
	QuickReplies []string
}

// Sender delivers messages to one customer.
type Sender interface {
	Send(ctx context.Context, customerID string, msg Message) error
}

var (
	boldTag   = regexp.MustCompile(`(?i)</?b>`)
	italicTag = regexp.MustCompile(`(?i)</?i>`)
)

// FormatText converts the small HTML subset used in templates into chat markup.
func FormatText(text string) string {
	text = boldTag.ReplaceAllString(text, "*")
	return italicTag.ReplaceAllString(text, "_")
}
