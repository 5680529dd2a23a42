package chat

import "sync"

// Buffer holds the conversation currently being composed. It only grows
// until Reset is called after a successful save.
type Buffer struct {
	mu   sync.RWMutex
	msgs Conversation
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *Buffer) AppendUser(text string) { b.Append(UserMessage(text)) }
func (b *Buffer) AppendBot(text string)  { b.Append(BotMessage(text)) }

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = nil
}

// Messages returns a snapshot; modifying it does not affect the buffer.
func (b *Buffer) Messages() Conversation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(Conversation, len(b.msgs))
	copy(out, b.msgs)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.msgs)
}
