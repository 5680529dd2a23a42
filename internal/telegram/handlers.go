package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"car-assistant/internal/chat"
	"car-assistant/internal/history"
	"car-assistant/internal/widget"
)

const (
	cbSave     = "save"
	cbHistory  = "history"
	cbMode     = "mode"
	cbTheme    = "theme"
	cbChat     = "chat"
	cbSuggest  = "suggest:"
	cbOpen     = "open:"
	cbAskInput = "ask"
)

func (b *Bot) session(ctx context.Context, chatID int64) (*widget.Session, error) {
	if b.sessions == nil {
		return nil, errors.New("sessions are not configured")
	}
	return b.sessions.Session(ctx, chatID)
}

func (b *Bot) denied(chatID, userID int64, username string) bool {
	if b.authSvc.IsAllowed(userID) {
		return false
	}
	b.log.Warn().Int64("user_id", userID).Str("username", username).Msg("unauthorized access attempt")
	b.sendMessage(chatID, "Sorry, this assistant is private.")
	return true
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || b.denied(msg.Chat.ID, msg.From.ID, msg.From.UserName) {
		return
	}
	switch msg.Command() {
	case "start", "help":
		b.showWelcome(ctx, msg.Chat.ID)
	case "save":
		b.saveConversation(ctx, msg.Chat.ID)
	case "history":
		b.showHistory(ctx, msg.Chat.ID)
	case "mode":
		b.toggleMode(ctx, msg.Chat.ID)
	case "report":
		if msg.From.ID != b.adminUserID {
			b.sendMessage(msg.Chat.ID, "This command is available to the administrator only.")
			return
		}
		if err := b.SendReport(ctx); err != nil {
			b.log.Error().Err(err).Msg("report failed")
			b.sendMessage(msg.Chat.ID, "Could not build the report.")
		}
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /start.")
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || b.denied(msg.Chat.ID, msg.From.ID, msg.From.UserName) {
		return
	}
	s, err := b.session(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to open session")
		b.sendMessage(msg.Chat.ID, "Sorry, something went wrong.")
		return
	}
	b.log.Debug().Int64("chat_id", msg.Chat.ID).Str("text", msg.Text).Msg("incoming message")

	ex, err := s.Send(ctx, msg.Text)
	if errors.Is(err, chat.ErrEmptyInput) {
		b.sendMessage(msg.Chat.ID, "Please type a question first.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("exchange failed")
		b.sendMessage(msg.Chat.ID, "Sorry, something went wrong.")
		return
	}
	b.sendWithMarkup(msg.Chat.ID, ex.Bot.Text, controlsKeyboard(s.Snapshot(), b.workshopURL))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "")
	if b.denied(chatID, cb.From.ID, cb.From.UserName) {
		return
	}

	switch data := cb.Data; {
	case data == cbSave:
		b.saveConversation(ctx, chatID)
	case data == cbHistory:
		b.showHistory(ctx, chatID)
	case data == cbMode:
		b.toggleMode(ctx, chatID)
	case data == cbTheme:
		b.toggleTheme(ctx, chatID)
	case data == cbChat:
		b.showChat(ctx, chatID)
	case data == cbAskInput:
		b.sendPendingInput(ctx, chatID)
	case strings.HasPrefix(data, cbSuggest):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, cbSuggest))
		if err != nil {
			return
		}
		b.pickSuggestion(ctx, chatID, idx)
	case strings.HasPrefix(data, cbOpen):
		b.openHistory(ctx, chatID, strings.TrimPrefix(data, cbOpen))
	default:
		b.log.Debug().Str("data", data).Msg("unknown callback")
	}
}

func (b *Bot) withSession(ctx context.Context, chatID int64, fn func(s *widget.Session)) {
	s, err := b.session(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to open session")
		b.sendMessage(chatID, "Sorry, something went wrong.")
		return
	}
	fn(s)
}

func (b *Bot) showWelcome(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		st := s.SelectTab(widget.TabChat)
		b.sendWithMarkup(chatID, chat.Welcome, suggestionsKeyboard())
		b.sendWithMarkup(chatID, modeLine(st), controlsKeyboard(st, b.workshopURL))
	})
}

func (b *Bot) showChat(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		s.SelectTab(widget.TabChat)
		st := s.Snapshot()
		text := "The current conversation is empty."
		if len(st.Messages) > 0 {
			text = renderConversation(st.Messages, st.Theme)
		}
		b.sendWithMarkup(chatID, text, controlsKeyboard(st, b.workshopURL))
	})
}

func (b *Bot) saveConversation(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		key, err := s.Save(ctx)
		if err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("save failed")
			b.sendMessage(chatID, "Could not save the conversation, please try again.")
			return
		}
		b.sendWithMarkup(chatID, fmt.Sprintf("Conversation saved as %q. A new conversation has started.", history.Label(key)),
			controlsKeyboard(s.Snapshot(), b.workshopURL))
	})
}

func (b *Bot) showHistory(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		keys, err := s.History(ctx)
		if err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("listing history failed")
			b.sendMessage(chatID, "Could not read saved conversations.")
			return
		}
		if len(keys) == 0 {
			b.sendWithMarkup(chatID, "No saved conversations yet.", backKeyboard())
			return
		}
		b.sendWithMarkup(chatID, "Saved conversations:", historyKeyboard(keys))
	})
}

func (b *Bot) openHistory(ctx context.Context, chatID int64, key string) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		res, err := s.Open(ctx, key)
		if err != nil {
			b.log.Error().Err(err).Str("key", key).Msg("loading history failed")
			b.sendMessage(chatID, "Could not read the saved conversation.")
			return
		}
		switch res.Status {
		case widget.Found:
			text := history.Label(key) + "\n\n" + renderConversation(res.Conversation, s.Snapshot().Theme)
			b.sendWithMarkup(chatID, text, historyKeyboard(s.Snapshot().HistoryKeys))
		case widget.NotFound:
			b.sendWithMarkup(chatID, "That conversation no longer exists.", historyKeyboard(s.Snapshot().HistoryKeys))
		case widget.Corrupt:
			b.sendWithMarkup(chatID, "That conversation could not be read.", historyKeyboard(s.Snapshot().HistoryKeys))
		}
	})
}

func (b *Bot) toggleMode(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		st := s.ToggleDetailed()
		b.sendWithMarkup(chatID, modeLine(st), controlsKeyboard(st, b.workshopURL))
	})
}

func (b *Bot) toggleTheme(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		st := s.ToggleTheme()
		b.sendWithMarkup(chatID, fmt.Sprintf("Theme: %s", st.Theme), controlsKeyboard(st, b.workshopURL))
	})
}

func (b *Bot) pickSuggestion(ctx context.Context, chatID int64, idx int) {
	if idx < 0 || idx >= len(chat.Suggestions) {
		return
	}
	b.withSession(ctx, chatID, func(s *widget.Session) {
		st := s.PickSuggestion(idx)
		b.sendWithMarkup(chatID, st.Input, askKeyboard())
	})
}

// sendPendingInput sends the text a suggestion put into the input box.
func (b *Bot) sendPendingInput(ctx context.Context, chatID int64) {
	b.withSession(ctx, chatID, func(s *widget.Session) {
		text := s.Snapshot().Input
		ex, err := s.Send(ctx, text)
		if errors.Is(err, chat.ErrEmptyInput) {
			b.sendMessage(chatID, "Please type a question first.")
			return
		}
		if err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("exchange failed")
			b.sendMessage(chatID, "Sorry, something went wrong.")
			return
		}
		b.sendWithMarkup(chatID, ex.Bot.Text, controlsKeyboard(s.Snapshot(), b.workshopURL))
	})
}
