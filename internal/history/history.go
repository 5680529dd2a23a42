// Package history persists finished conversations under timestamp-derived
// keys and reads them back.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"car-assistant/internal/chat"
	"car-assistant/internal/storage"
)

const (
	KeyPrefix = "chat_history_"
	// KeyLayout matches the ISO-8601 form produced by a browser's toISOString.
	KeyLayout = "2006-01-02T15:04:05.000Z"
)

var ErrNotFound = errors.New("history not found")

// DeserializationError reports a stored value that is not a valid conversation.
type DeserializationError struct {
	Key string
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("history %s: malformed value: %v", e.Key, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// KeyFor builds the history key for a save made at t.
func KeyFor(t time.Time) string {
	return KeyPrefix + t.UTC().Format(KeyLayout)
}

func IsKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}

// Timestamp extracts the save time encoded in key.
func Timestamp(key string) (time.Time, error) {
	if !IsKey(key) {
		return time.Time{}, errors.Errorf("not a history key: %q", key)
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(key, KeyPrefix))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse history key %q", key)
	}
	return ts, nil
}

// Label is the human-readable name of a saved conversation.
func Label(key string) string {
	return "History of " + strings.TrimPrefix(key, KeyPrefix)
}

// Entry is one saved conversation as returned by Scan. Err is set instead
// of Conversation when the stored value could not be decoded.
type Entry struct {
	Key          string
	Conversation chat.Conversation
	Err          error
}

type Store struct {
	kv  storage.KV
	now func() time.Time
	log zerolog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save writes conv under a fresh key and returns it. When two saves land on
// the same millisecond the later one is moved forward until its key is free,
// so an earlier save is never overwritten by this process.
func (s *Store) Save(ctx context.Context, conv chat.Conversation) (string, error) {
	if conv == nil {
		conv = chat.Conversation{}
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return "", errors.Wrap(err, "encode conversation")
	}
	ts := s.now().UTC().Truncate(time.Millisecond)
	key := KeyFor(ts)
	for {
		_, exists, err := s.kv.Get(ctx, key)
		if err != nil {
			return "", errors.Wrap(err, "check history key")
		}
		if !exists {
			break
		}
		ts = ts.Add(time.Millisecond)
		key = KeyFor(ts)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return "", errors.Wrapf(err, "save history %s", key)
	}
	s.log.Debug().Str("key", key).Int("messages", len(conv)).Msg("conversation saved")
	return key, nil
}

// ListKeys returns every history key, oldest first.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "list history keys")
	}
	sort.Strings(keys)
	return keys, nil
}

// Load returns the conversation saved under key, ErrNotFound when there is
// none, or a *DeserializationError when the stored value is corrupt.
func (s *Store) Load(ctx context.Context, key string) (chat.Conversation, error) {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "load history %s", key)
	}
	if !ok || !IsKey(key) {
		return nil, errors.Wrap(ErrNotFound, key)
	}
	var conv chat.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &DeserializationError{Key: key, Err: err}
	}
	if conv == nil {
		// "null" is not a conversation
		return nil, &DeserializationError{Key: key, Err: errors.New("null value")}
	}
	if err := conv.Validate(); err != nil {
		return nil, &DeserializationError{Key: key, Err: err}
	}
	return conv, nil
}

// Scan loads every saved conversation. A corrupt entry is reported on that
// entry and the scan continues.
func (s *Store) Scan(ctx context.Context) ([]Entry, error) {
	keys, err := s.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		conv, err := s.Load(ctx, k)
		if err != nil {
			var de *DeserializationError
			if !errors.As(err, &de) && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			s.log.Warn().Err(err).Str("key", k).Msg("skipping unreadable history entry")
		}
		out = append(out, Entry{Key: k, Conversation: conv, Err: err})
	}
	return out, nil
}
