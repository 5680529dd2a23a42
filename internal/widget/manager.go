package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"car-assistant/internal/history"
	"car-assistant/internal/storage"
)

// ChatNamespace is the key prefix isolating one chat's saved conversations
// inside a shared store.
func ChatNamespace(chatID int64) string {
	return fmt.Sprintf("chat:%d:", chatID)
}

type managedSession struct {
	session  *Session
	lastUsed time.Time
}

// Manager lazily creates one Session per chat. Every session sees only its
// own namespace of the shared key-value store.
type Manager struct {
	kv        storage.KV
	completer Completer
	recorder  storage.Recorder
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[int64]*managedSession
}

func NewManager(kv storage.KV, completer Completer, recorder storage.Recorder, log zerolog.Logger) *Manager {
	return &Manager{
		kv:        kv,
		completer: completer,
		recorder:  recorder,
		log:       log,
		now:       time.Now,
		sessions:  make(map[int64]*managedSession),
	}
}

// Store returns the history store for chatID.
func (m *Manager) Store(chatID int64) *history.Store {
	return history.NewStore(storage.Namespace(m.kv, ChatNamespace(chatID)), history.WithLogger(m.log))
}

func (m *Manager) Session(ctx context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.sessions[chatID]; ok {
		ms.lastUsed = m.now()
		return ms.session, nil
	}
	s, err := NewSession(ctx, Options{
		ChatID:    chatID,
		Store:     m.Store(chatID),
		Completer: m.completer,
		Recorder:  m.recorder,
		Logger:    m.log,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[chatID] = &managedSession{session: s, lastUsed: m.now()}
	m.log.Debug().Int64("chat_id", chatID).Msg("session created")
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle closes sessions unused for longer than maxIdle and returns how
// many were closed. A session with an exchange in flight is kept. The
// unsaved conversation of an evicted session is discarded, saved ones stay
// in the store.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*Session
	for id, ms := range m.sessions {
		if ms.lastUsed.After(cutoff) || !ms.session.Idle() {
			continue
		}
		stale = append(stale, ms.session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		m.log.Debug().Int64("chat_id", s.ChatID()).Msg("idle session evicted")
	}
	return len(stale)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (m *Manager) RunEviction(ctx context.Context, interval, maxIdle time.Duration) error {
	if interval <= 0 || maxIdle <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.EvictIdle(maxIdle); n > 0 {
				m.log.Info().Int("evicted", n).Int("live", m.Len()).Msg("idle sessions evicted")
			}
		}
	}
}

// Close stops every session. The store is owned by the caller.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ms := range m.sessions {
		ms.session.Close()
		delete(m.sessions, id)
	}
}
