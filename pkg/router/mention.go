package router

import (
	"sort"
	"strings"

	"github.com/chatrelay/chatrelay/pkg/line"
)

// StripBotMention removes the span(s) mentioning the bot itself from text and
// trims the result. Mentions of anyone else are left untouched, offsets and
// all. Spans are removed in descending index order: removing a span never
// shifts anything positioned before it, so earlier spans' recorded offsets
// stay valid. Ascending-order removal would corrupt every later offset.
//
// Index and Length are treated as rune offsets into the delivered text.
func StripBotMention(msg *line.Message, text, botUserID string) string {
	if msg == nil || msg.Mention == nil || len(msg.Mention.Mentionees) == 0 {
		return strings.TrimSpace(text)
	}

	var own []line.Mentionee
	for _, m := range msg.Mention.Mentionees {
		if m.UserID == botUserID && m.Length > 0 {
			own = append(own, m)
		}
	}
	if len(own) == 0 {
		return strings.TrimSpace(text)
	}

	sort.Slice(own, func(i, j int) bool {
		return own[i].Index > own[j].Index
	})

	runes := []rune(text)
	for _, m := range own {
		start, end := m.Index, m.Index+m.Length
		if start < 0 || start > len(runes) {
			continue
		}
		if end > len(runes) {
			end = len(runes)
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.TrimSpace(string(runes))
}
