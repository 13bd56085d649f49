// Package line models the decoded LINE Messaging API webhook payload and the
// reply-side REST client. The webhook transport delivers a signed batch of
// events; everything past signature verification works on these types.
package line

// WebhookBody is the decoded body of one webhook POST.
type WebhookBody struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type       string   `json:"type"`
	ReplyToken string   `json:"replyToken"`
	Source     Source   `json:"source"`
	Message    *Message `json:"message,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

// Source identifies the conversation an event came from. Type is "user" for
// one-to-one chats, "group" or "room" for multi-party ones.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

func (s Source) IsDirect() bool {
	return s.Type == "user"
}

// Message carries both historical quote representations: QuotedMessageID is
// the current field, Reference the legacy inline object. Either may be set.
type Message struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Text            string     `json:"text,omitempty"`
	QuotedMessageID string     `json:"quotedMessageId,omitempty"`
	Reference       *Reference `json:"reference,omitempty"`
	Mention         *Mention   `json:"mention,omitempty"`
	Duration        int64      `json:"duration,omitempty"`
}

type Reference struct {
	MessageID string `json:"messageId"`
}

type Mention struct {
	Mentionees []Mentionee `json:"mentionees"`
}

// Mentionee is one mention span within the message text. Index and Length are
// offsets into the text as delivered.
type Mentionee struct {
	Index  int    `json:"index"`
	Length int    `json:"length"`
	UserID string `json:"userId"`
}

// QuotedID returns the id of the message this one replies to, honoring both
// wire shapes, or "" when the message quotes nothing.
func (m *Message) QuotedID() string {
	if m == nil {
		return ""
	}
	if m.QuotedMessageID != "" {
		return m.QuotedMessageID
	}
	if m.Reference != nil {
		return m.Reference.MessageID
	}
	return ""
}
