package messaging

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/conversation"
)

type waWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string      `json:"messaging_product"`
				Messages         []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type waMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *waMedia `json:"image"`
	Document *waMedia `json:"document"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button"`
}

// ParseWhatsAppWebhook extracts customer events from a Cloud API webhook
// payload. Status callbacks and unsupported message types yield no events.
func ParseWhatsAppWebhook(body []byte) ([]conversation.Event, error) {
	var hook waWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("whatsapp webhook: %w", err)
	}
	var events []conversation.Event
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				ev, ok := whatsAppEvent(m)
				if ok {
					events = append(events, ev)
				}
			}
		}
	}
	return events, nil
}

func whatsAppEvent(m waMessage) (conversation.Event, bool) {
	ev := conversation.Event{
		Channel:    config.ChannelWhatsApp,
		CustomerID: m.From,
		MessageID:  m.ID,
	}
	if m.From == "" {
		return ev, false
	}
	switch {
	case m.Text != nil:
		ev.Kind = conversation.EventText
		ev.Text = m.Text.Body
	case m.Button != nil:
		ev.Kind = conversation.EventText
		ev.Text = m.Button.Text
	case m.Image != nil:
		ev.Kind = conversation.EventImage
		ev.MediaRef = m.Image.ID
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/"):
		ev.Kind = conversation.EventImage
		ev.MediaRef = m.Document.ID
	default:
		return ev, false
	}
	return ev, true
}
