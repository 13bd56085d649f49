package cache

import (
	"strings"

	"github.com/chatrelay/chatrelay/pkg/line"
	"github.com/chatrelay/chatrelay/pkg/logger"
)

// Ingest caches every text message in the batch, whether or not the bot will
// act on it: a later message may quote an ignored one. Quote declarations on
// the payload are recorded alongside. Malformed events are skipped so the
// rest of the batch still lands.
func Ingest(cache *MessageCache, quotes *QuoteResolver, body *line.WebhookBody) {
	if body == nil {
		return
	}
	for i := range body.Events {
		ev := &body.Events[i]
		if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" {
			continue
		}
		msg := ev.Message
		if msg.ID == "" {
			logger.WarnC("cache", "Skipping text message with empty id")
			continue
		}
		cache.Put(msg.ID, strings.TrimSpace(msg.Text))
		if parent := msg.QuotedID(); parent != "" {
			quotes.RecordQuote(msg.ID, parent)
		}
	}
}
