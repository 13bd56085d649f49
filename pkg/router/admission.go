package router

import (
	"strings"

	"github.com/chatrelay/chatrelay/pkg/line"
)

const commandPrefix = "/"

// Admit decides whether an inbound text event deserves any processing.
// Direct conversations are always admitted. Group and room conversations are
// admitted only for explicit commands or when the bot itself is mentioned;
// everything else is silently ignored so the bot does not spam multi-party
// chats.
func Admit(ev *line.Event, text, botUserID string) bool {
	if ev == nil {
		return false
	}
	if ev.Source.IsDirect() {
		return true
	}
	switch ev.Source.Type {
	case "group", "room":
	default:
		return false
	}

	if strings.HasPrefix(text, commandPrefix) {
		return true
	}
	if ev.Message != nil && ev.Message.Mention != nil {
		for _, m := range ev.Message.Mention.Mentionees {
			if m.UserID == botUserID {
				return true
			}
		}
	}
	return false
}
