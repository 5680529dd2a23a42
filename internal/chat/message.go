package chat

import "github.com/pkg/errors"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single turn of a conversation. The JSON shape is the on-disk
// format of saved conversations and must stay {"sender","text"}.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

func UserMessage(text string) Message { return Message{Sender: SenderUser, Text: text} }
func BotMessage(text string) Message  { return Message{Sender: SenderBot, Text: text} }

// Conversation is an ordered list of messages; index order is chronological order.
type Conversation []Message

// Clone returns a copy that shares no backing array with c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

var ErrUnknownSender = errors.New("unknown sender")

// Validate checks that every message has a known sender.
func (c Conversation) Validate() error {
	for i, m := range c {
		if m.Sender != SenderUser && m.Sender != SenderBot {
			return errors.Wrapf(ErrUnknownSender, "message %d: %q", i, m.Sender)
		}
	}
	return nil
}
