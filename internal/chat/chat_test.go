package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	inputs := []string{"brakes not stopping", "  padded  ", "a: b", "multi\nline"}
	for _, in := range inputs {
		assert.Equal(t, "answer simply: "+in, Compose(in, false))
		assert.Equal(t, "provide a detailed explanation of: "+in, Compose(in, true))
	}
	assert.Equal(t, "answer simply: brakes not stopping", Compose("brakes not stopping", false))
}

func TestValidateInput(t *testing.T) {
	for _, in := range []string{"", " ", "\t\n", "   \r\n "} {
		assert.ErrorIs(t, ValidateInput(in), ErrEmptyInput, "input %q", in)
	}
	assert.NoError(t, ValidateInput(" x "))
}

func TestBufferAppendResetAndCopy(t *testing.T) {
	b := NewBuffer()
	b.AppendUser("hello")
	b.AppendBot("hi")

	msgs := b.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, UserMessage("hello"), msgs[0])
	assert.Equal(t, BotMessage("hi"), msgs[1])

	// modifying the snapshot must not leak into the buffer
	msgs[0] = UserMessage("mutated")
	assert.Equal(t, "hello", b.Messages()[0].Text)

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Messages())
}

func TestConversationValidate(t *testing.T) {
	ok := Conversation{UserMessage("a"), BotMessage("b")}
	require.NoError(t, ok.Validate())

	bad := Conversation{UserMessage("a"), {Sender: "assistant", Text: "b"}}
	assert.ErrorIs(t, bad.Validate(), ErrUnknownSender)
}

func TestConversationClone(t *testing.T) {
	var nilConv Conversation
	assert.Nil(t, nilConv.Clone())

	c := Conversation{UserMessage("a")}
	cl := c.Clone()
	cl[0] = BotMessage("b")
	assert.Equal(t, SenderUser, c[0].Sender)
}
