package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-assistant/internal/chat"
	"car-assistant/internal/history"
	"car-assistant/internal/llm"
	"car-assistant/internal/storage"
)

// scriptedCompleter answers with reply(prompt). When gates holds a channel
// for a prompt, the answer waits until that channel is closed.
type scriptedCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) llm.Completion
	gates   map[string]chan struct{}
	started chan string
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) llm.Completion {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	gate := c.gates[prompt]
	c.mu.Unlock()
	if c.started != nil {
		c.started <- prompt
	}
	if gate != nil {
		<-gate
	}
	return c.reply(prompt)
}

func (c *scriptedCompleter) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func echoCompleter() *scriptedCompleter {
	return &scriptedCompleter{reply: func(p string) llm.Completion {
		return llm.Completion{Reply: "re: " + p, Response: llm.Response{Model: "test"}}
	}}
}

type failingClient struct{}

func (failingClient) Generate(context.Context, []llm.Message) (llm.Response, error) {
	return llm.Response{}, errors.New("401 unauthorized")
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendEvent(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadEvents() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...), nil
}

func newSession(t *testing.T, c Completer, kv storage.KV, opts ...history.Option) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), Options{
		ChatID:    7,
		Store:     history.NewStore(kv, opts...),
		Completer: c,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSend_TransportErrorYieldsFallback(t *testing.T) {
	rec := &memRecorder{}
	s, err := NewSession(context.Background(), Options{
		ChatID:    1,
		Store:     history.NewStore(storage.NewMemoryKV()),
		Completer: llm.NewCompleter(failingClient{}, nopLogger()),
		Recorder:  rec,
	})
	require.NoError(t, err)
	defer s.Close()

	ex, err := s.Send(context.Background(), "brakes not stopping")
	require.NoError(t, err)
	assert.Equal(t, "answer simply: brakes not stopping", ex.Prompt)
	assert.True(t, ex.Completion.Fallback)

	assert.Equal(t, chat.Conversation{
		chat.UserMessage("brakes not stopping"),
		chat.BotMessage("Sorry, I could not understand your question."),
	}, s.Snapshot().Messages)

	events, _ := rec.LoadEvents()
	require.Len(t, events, 1)
	assert.Equal(t, storage.KindExchange, events[0].Kind)
	assert.True(t, events[0].Fallback)
	assert.Equal(t, int64(1), events[0].ChatID)
}

func TestSend_RejectsBlankInput(t *testing.T) {
	c := echoCompleter()
	s := newSession(t, c, storage.NewMemoryKV())
	s.SetInput("   ")

	for _, in := range []string{"", "  ", "\n\t"} {
		_, err := s.Send(context.Background(), in)
		assert.ErrorIs(t, err, chat.ErrEmptyInput)
	}
	assert.Empty(t, s.Snapshot().Messages)
	assert.Empty(t, c.calls())
	assert.Equal(t, "   ", s.Snapshot().Input, "rejected input is left in place")
}

func TestSend_DetailedMode(t *testing.T) {
	c := echoCompleter()
	s := newSession(t, c, storage.NewMemoryKV())

	s.PickSuggestion(0)
	assert.Equal(t, chat.Suggestions[0].Text, s.Snapshot().Input)

	st := s.ToggleDetailed()
	require.True(t, st.Detailed)
	ex, err := s.Send(context.Background(), "engine noise")
	require.NoError(t, err)
	assert.Equal(t, "provide a detailed explanation of: engine noise", ex.Prompt)
	assert.Equal(t, "re: provide a detailed explanation of: engine noise", ex.Bot.Text)
	assert.Empty(t, s.Snapshot().Input)
}

func TestSaveThenOpen(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 9, 12, 18, 4, 5, 0, time.UTC)
	kv := storage.NewMemoryKV()
	s := newSession(t, echoCompleter(), kv, history.WithClock(func() time.Time { return ts }))

	_, err := s.Send(ctx, "first")
	require.NoError(t, err)
	want := s.Snapshot().Messages
	require.Len(t, want, 2)

	key, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chat_history_2024-09-12T18:04:05.000Z", key)

	st := s.Snapshot()
	assert.Empty(t, st.Messages)
	assert.Contains(t, st.HistoryKeys, key)

	keys, err := s.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
	assert.Equal(t, TabHistory, s.Snapshot().Tab)

	res, err := s.Open(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, want, res.Conversation)

	st = s.Snapshot()
	assert.Equal(t, key, st.SelectedKey)
	assert.Equal(t, want, st.Selected)
}

func TestOpen_MissingLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, echoCompleter(), storage.NewMemoryKV())
	_, err := s.Send(ctx, "q")
	require.NoError(t, err)
	key, err := s.Save(ctx)
	require.NoError(t, err)
	_, err = s.Open(ctx, key)
	require.NoError(t, err)
	_, err = s.Send(ctx, "still typing")
	require.NoError(t, err)

	before := s.Snapshot()
	res, err := s.Open(ctx, "chat_history_1999-01-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)
	assert.ErrorIs(t, res.Err, history.ErrNotFound)
	assert.Equal(t, before, s.Snapshot())
}

func TestOpen_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "chat_history_2024-01-01T00:00:00.000Z", []byte("{oops")))
	s := newSession(t, echoCompleter(), kv)

	assert.Equal(t, []string{"chat_history_2024-01-01T00:00:00.000Z"}, s.Snapshot().HistoryKeys, "index loaded at startup")

	before := s.Snapshot()
	res, err := s.Open(ctx, "chat_history_2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, Corrupt, res.Status)
	var de *history.DeserializationError
	assert.True(t, errors.As(res.Err, &de))
	assert.Equal(t, before, s.Snapshot())
}

type brokenKV struct{ storage.KV }

func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestSave_FailureKeepsConversation(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, echoCompleter(), brokenKV{KV: storage.NewMemoryKV()})
	_, err := s.Send(ctx, "q")
	require.NoError(t, err)

	_, err = s.Save(ctx)
	require.Error(t, err)
	assert.Len(t, s.Snapshot().Messages, 2)
	assert.Empty(t, s.Snapshot().HistoryKeys)
}

func TestSend_RepliesAppendInSendOrder(t *testing.T) {
	ctx := context.Background()
	c := echoCompleter()
	c.gates = map[string]chan struct{}{
		"answer simply: slow": make(chan struct{}),
	}
	c.started = make(chan string, 4)
	s := newSession(t, c, storage.NewMemoryKV())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Send(ctx, "slow")
		assert.NoError(t, err)
	}()
	require.Equal(t, "answer simply: slow", <-c.started)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Send(ctx, "fast")
		assert.NoError(t, err)
	}()

	// the second exchange cannot start while the first is outstanding
	select {
	case p := <-c.started:
		t.Fatalf("exchange %q started before the previous reply", p)
	case <-time.After(50 * time.Millisecond):
	}
	close(c.gates["answer simply: slow"])
	wg.Wait()

	assert.Equal(t, chat.Conversation{
		chat.UserMessage("slow"),
		chat.BotMessage("re: answer simply: slow"),
		chat.UserMessage("fast"),
		chat.BotMessage("re: answer simply: fast"),
	}, s.Snapshot().Messages)
}

func TestSave_WaitsForPendingExchange(t *testing.T) {
	ctx := context.Background()
	c := echoCompleter()
	c.gates = map[string]chan struct{}{"answer simply: q": make(chan struct{})}
	c.started = make(chan string, 1)
	kv := storage.NewMemoryKV()
	s := newSession(t, c, kv)

	go func() { _, _ = s.Send(ctx, "q") }()
	<-c.started

	saved := make(chan string, 1)
	go func() {
		key, err := s.Save(ctx)
		assert.NoError(t, err)
		saved <- key
	}()
	close(c.gates["answer simply: q"])
	key := <-saved

	conv, err := history.NewStore(kv).Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, conv, 2, "reply landed before the save")
	assert.Empty(t, s.Snapshot().Messages)
}

func TestClosedSession(t *testing.T) {
	s := newSession(t, echoCompleter(), storage.NewMemoryKV())
	s.Close()
	_, err := s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Save(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewSession_RequiresDependencies(t *testing.T) {
	_, err := NewSession(context.Background(), Options{Completer: echoCompleter()})
	assert.Error(t, err)
	_, err = NewSession(context.Background(), Options{Store: history.NewStore(storage.NewMemoryKV())})
	assert.Error(t, err)
}

// flush waits until every job queued so far has been handled.
func flush(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.run(context.Background(), func() {}))
}

// holdExchange starts an exchange for text whose reply waits for the
// returned release func.
func holdExchange(t *testing.T, s *Session, c *scriptedCompleter, text string) (release func()) {
	t.Helper()
	prompt := chat.Compose(text, false)
	gate := make(chan struct{})
	c.mu.Lock()
	if c.gates == nil {
		c.gates = map[string]chan struct{}{}
	}
	c.gates[prompt] = gate
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Send(context.Background(), text)
		assert.NoError(t, err)
	}()
	require.Equal(t, prompt, <-c.started)
	return func() {
		close(gate)
		<-done
	}
}

func TestSend_CancelledWhileQueuedDoesNotRun(t *testing.T) {
	c := echoCompleter()
	c.started = make(chan string, 4)
	s := newSession(t, c, storage.NewMemoryKV())
	release := holdExchange(t, s, c, "a")

	cctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Send(cctx, "b")
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	release()
	flush(t, s)

	assert.Equal(t, []string{"answer simply: a"}, c.calls())
	assert.Equal(t, chat.Conversation{
		chat.UserMessage("a"),
		chat.BotMessage("re: answer simply: a"),
	}, s.Snapshot().Messages)
}

func TestSave_CancelledWhileQueuedKeepsConversation(t *testing.T) {
	ctx := context.Background()
	c := echoCompleter()
	c.started = make(chan string, 4)
	kv := storage.NewMemoryKV()
	s := newSession(t, c, kv)
	release := holdExchange(t, s, c, "a")

	cctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := s.Save(cctx)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	release()
	flush(t, s)

	keys, err := kv.Keys(ctx, history.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Len(t, s.Snapshot().Messages, 2)
	assert.True(t, s.Idle())
}

func TestSend_CancelledAfterStartStillAppendsReply(t *testing.T) {
	c := echoCompleter()
	c.started = make(chan string, 1)
	gate := make(chan struct{})
	c.gates = map[string]chan struct{}{"answer simply: q": gate}
	s := newSession(t, c, storage.NewMemoryKV())

	cctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Send(cctx, "q")
		errc <- err
	}()
	<-c.started
	cancel()
	assert.False(t, s.Idle())
	close(gate)

	require.NoError(t, <-errc)
	assert.Len(t, s.Snapshot().Messages, 2, "a started exchange always gets its reply")
}
