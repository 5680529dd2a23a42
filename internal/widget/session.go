// Package widget holds the chat widget's application state and runs
// exchanges with the model against it.
package widget

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"car-assistant/internal/chat"
	"car-assistant/internal/history"
	"car-assistant/internal/llm"
	"car-assistant/internal/storage"
)

var ErrClosed = errors.New("session closed")

// Completer is the part of llm.Completer the session needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) llm.Completion
}

// Exchange is one question and its answer as appended to the conversation.
type Exchange struct {
	User       chat.Message
	Bot        chat.Message
	Prompt     string
	Detailed   bool
	Completion llm.Completion
}

type LoadStatus int

const (
	Found LoadStatus = iota
	NotFound
	Corrupt
)

func (s LoadStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of opening a saved conversation.
type LoadResult struct {
	Status       LoadStatus
	Key          string
	Conversation chat.Conversation
	Err          error
}

type Options struct {
	ChatID    int64
	Store     *history.Store
	Completer Completer
	Recorder  storage.Recorder
	Logger    zerolog.Logger
	// QueueSize bounds how many exchanges may wait behind the running one
	// before Send blocks.
	QueueSize int
}

// Session is one user's widget. Exchanges and saves run one at a time in
// submission order on a dedicated goroutine, so replies are appended in the
// order questions were sent and user and bot turns strictly alternate.
type Session struct {
	chatID    int64
	store     *history.Store
	completer Completer
	recorder  storage.Recorder
	log       zerolog.Logger
	now       func() time.Time

	buf *chat.Buffer

	mu    sync.RWMutex
	state State

	jobs      chan func()
	pending   atomic.Int32
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession builds a session and loads the history index from the store.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("widget: history store is required")
	}
	if opts.Completer == nil {
		return nil, errors.New("widget: completer is required")
	}
	log := opts.Logger.With().Int64("chat_id", opts.ChatID).Logger()
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	s := &Session{
		chatID:    opts.ChatID,
		store:     opts.Store,
		completer: opts.Completer,
		recorder:  opts.Recorder,
		log:       log,
		now:       time.Now,
		buf:       chat.NewBuffer(),
		state:     InitialState(),
		jobs:      make(chan func(), opts.QueueSize),
		quit:      make(chan struct{}),
	}
	if _, err := s.refreshIndex(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-s.quit:
			return
		}
	}
}

// Close stops the worker. Queued but unstarted exchanges are dropped and
// their callers get ErrClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
}

const (
	jobQueued int32 = iota
	jobRunning
	jobWithdrawn
)

// run queues fn behind earlier work and waits for it to finish. A job whose
// caller gives up before it starts never runs; one that has started is
// always waited for, so the caller sees its effects.
func (s *Session) run(ctx context.Context, fn func()) error {
	s.pending.Add(1)
	defer s.pending.Add(-1)

	var state atomic.Int32
	done := make(chan struct{})
	job := func() {
		if !state.CompareAndSwap(jobQueued, jobRunning) {
			return
		}
		defer close(done)
		fn()
	}
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	select {
	case s.jobs <- job:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.quit:
		return withdraw(&state, done, ErrClosed)
	case <-ctx.Done():
		return withdraw(&state, done, ctx.Err())
	}
}

func withdraw(state *atomic.Int32, done <-chan struct{}, err error) error {
	if state.CompareAndSwap(jobQueued, jobWithdrawn) {
		return err
	}
	<-done
	return nil
}

// Idle reports whether no exchange or save is queued or running.
func (s *Session) Idle() bool { return s.pending.Load() == 0 }

func (s *Session) dispatch(ev Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, ev)
	return s.state
}

// Snapshot returns the current state including the active conversation.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	st := s.state.clone()
	s.mu.RUnlock()
	st.Messages = s.buf.Messages()
	return st
}

func (s *Session) ChatID() int64 { return s.chatID }

func (s *Session) SetInput(text string) State { return s.dispatch(InputChanged{Text: text}) }
func (s *Session) ToggleTheme() State         { return s.dispatch(ThemeToggled{}) }
func (s *Session) ToggleDetailed() State      { return s.dispatch(DetailToggled{}) }
func (s *Session) SelectTab(tab Tab) State    { return s.dispatch(TabSelected{Tab: tab}) }
func (s *Session) PickSuggestion(i int) State { return s.dispatch(SuggestionPicked{Index: i}) }

// Send asks the model about text. Empty or whitespace-only text is rejected
// with chat.ErrEmptyInput before anything is appended or requested. A failed
// completion is answered with llm.FallbackReply, never with an error.
// The response mode is the one in effect when Send is called. Cancelling ctx
// before the exchange starts returns ctx.Err() and appends nothing.
func (s *Session) Send(ctx context.Context, text string) (Exchange, error) {
	if err := chat.ValidateInput(text); err != nil {
		return Exchange{}, err
	}
	st := s.dispatch(InputSubmitted{})
	ex := Exchange{
		User:     chat.UserMessage(text),
		Prompt:   chat.Compose(text, st.Detailed),
		Detailed: st.Detailed,
	}
	err := s.run(ctx, func() {
		s.buf.Append(ex.User)
		ex.Completion = s.completer.Complete(ctx, ex.Prompt)
		ex.Bot = chat.BotMessage(ex.Completion.Reply)
		s.buf.Append(ex.Bot)
		s.record(storage.Event{
			Kind:        storage.KindExchange,
			UserMessage: text,
			Prompt:      ex.Prompt,
			Reply:       ex.Completion.Reply,
			Detailed:    ex.Detailed,
			Fallback:    ex.Completion.Fallback,
			Model:       ex.Completion.Response.Model,
			TotalTokens: ex.Completion.Response.TotalTokens,
		})
	})
	if err != nil {
		return Exchange{}, err
	}
	return ex, nil
}

// Save persists the active conversation and starts a new one. It waits for
// exchanges sent before it. On failure, including ctx ending while it is
// still queued, the conversation is kept.
func (s *Session) Save(ctx context.Context) (string, error) {
	var (
		key     string
		saveErr error
	)
	err := s.run(ctx, func() {
		conv := s.buf.Messages()
		key, saveErr = s.store.Save(ctx, conv)
		if saveErr != nil {
			return
		}
		s.buf.Reset()
		s.dispatch(ConversationSaved{Key: key})
		s.log.Info().Str("key", key).Int("messages", len(conv)).Msg("conversation saved")
		s.record(storage.Event{Kind: storage.KindSave, HistoryKey: key, MessageCount: len(conv)})
	})
	if err != nil {
		return "", err
	}
	if saveErr != nil {
		return "", saveErr
	}
	// pick up keys written by other processes sharing the store
	if _, err := s.refreshIndex(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to refresh history index after save")
	}
	return key, nil
}

// History recomputes the index of saved conversations and switches to the
// history tab.
func (s *Session) History(ctx context.Context) ([]string, error) {
	keys, err := s.refreshIndex(ctx)
	if err != nil {
		return nil, err
	}
	s.dispatch(TabSelected{Tab: TabHistory})
	return keys, nil
}

func (s *Session) refreshIndex(ctx context.Context) ([]string, error) {
	keys, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	s.dispatch(HistoryIndexed{Keys: keys})
	return keys, nil
}

// Open loads a saved conversation into the history view. A missing or
// corrupt entry is reported in the result and leaves the view unchanged;
// the error return is reserved for store failures.
func (s *Session) Open(ctx context.Context, key string) (LoadResult, error) {
	conv, err := s.store.Load(ctx, key)
	var de *history.DeserializationError
	switch {
	case err == nil:
		s.dispatch(HistoryOpened{Key: key, Conversation: conv})
		return LoadResult{Status: Found, Key: key, Conversation: conv}, nil
	case errors.Is(err, history.ErrNotFound):
		s.dispatch(HistoryMissing{Key: key})
		return LoadResult{Status: NotFound, Key: key, Err: err}, nil
	case errors.As(err, &de):
		s.log.Warn().Err(err).Str("key", key).Msg("saved conversation is corrupt")
		return LoadResult{Status: Corrupt, Key: key, Err: err}, nil
	default:
		return LoadResult{}, err
	}
}

func (s *Session) record(ev storage.Event) {
	if s.recorder == nil {
		return
	}
	ev.Timestamp = s.now().UTC()
	ev.ChatID = s.chatID
	if err := s.recorder.AppendEvent(ev); err != nil {
		s.log.Warn().Err(err).Str("kind", ev.Kind).Msg("failed to record event")
	}
}
