package widget

import (
	"sort"

	"car-assistant/internal/chat"
)

type Tab string

const (
	TabChat    Tab = "chat"
	TabHistory Tab = "history"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// State is everything the widget shows. Messages mirrors the session buffer
// and is filled in by Session.Snapshot; Reduce leaves it alone.
type State struct {
	Messages    chat.Conversation
	Input       string
	Theme       Theme
	Detailed    bool
	Tab         Tab
	HistoryKeys []string
	SelectedKey string
	Selected    chat.Conversation
}

func InitialState() State {
	return State{Theme: ThemeLight, Tab: TabChat}
}

// Event is a UI occurrence that moves the widget from one State to the next.
type Event interface{ event() }

type (
	InputChanged      struct{ Text string }
	SuggestionPicked  struct{ Index int }
	ThemeToggled      struct{}
	DetailToggled     struct{}
	TabSelected       struct{ Tab Tab }
	InputSubmitted    struct{}
	ConversationSaved struct{ Key string }
	HistoryIndexed    struct{ Keys []string }
	HistoryOpened     struct {
		Key          string
		Conversation chat.Conversation
	}
	HistoryMissing struct{ Key string }
)

func (InputChanged) event()      {}
func (SuggestionPicked) event()  {}
func (ThemeToggled) event()      {}
func (DetailToggled) event()     {}
func (TabSelected) event()       {}
func (InputSubmitted) event()    {}
func (ConversationSaved) event() {}
func (HistoryIndexed) event()    {}
func (HistoryOpened) event()     {}
func (HistoryMissing) event()    {}

// Reduce returns the state that follows s after ev. It never mutates s.
func Reduce(s State, ev Event) State {
	next := s.clone()
	switch e := ev.(type) {
	case InputChanged:
		next.Input = e.Text
	case SuggestionPicked:
		if e.Index >= 0 && e.Index < len(chat.Suggestions) {
			next.Input = chat.Suggestions[e.Index].Text
		}
	case ThemeToggled:
		if next.Theme == ThemeDark {
			next.Theme = ThemeLight
		} else {
			next.Theme = ThemeDark
		}
	case DetailToggled:
		next.Detailed = !next.Detailed
	case TabSelected:
		if e.Tab == TabChat || e.Tab == TabHistory {
			next.Tab = e.Tab
		}
	case InputSubmitted:
		next.Input = ""
	case ConversationSaved:
		next.HistoryKeys = addKey(next.HistoryKeys, e.Key)
	case HistoryIndexed:
		next.HistoryKeys = append([]string(nil), e.Keys...)
	case HistoryOpened:
		next.SelectedKey = e.Key
		next.Selected = e.Conversation.Clone()
		next.Tab = TabHistory
	case HistoryMissing:
		// the previous selection stays on screen
	}
	return next
}

func (s State) clone() State {
	out := s
	out.Messages = s.Messages.Clone()
	out.Selected = s.Selected.Clone()
	if s.HistoryKeys != nil {
		out.HistoryKeys = append([]string(nil), s.HistoryKeys...)
	}
	return out
}

func addKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	keys = append(keys, key)
	sort.Strings(keys)
	return keys
}
