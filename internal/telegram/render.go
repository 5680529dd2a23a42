package telegram

import (
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"car-assistant/internal/chat"
	"car-assistant/internal/history"
	"car-assistant/internal/widget"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageLen = 4000

func modeLine(st widget.State) string {
	if st.Detailed {
		return "Mode: detailed answers"
	}
	return "Mode: simple answers"
}

func speaker(sender chat.Sender, theme widget.Theme) string {
	if theme == widget.ThemeDark {
		if sender == chat.SenderUser {
			return "▪ You"
		}
		return "▫ Assistant"
	}
	if sender == chat.SenderUser {
		return "🧑 You"
	}
	return "🤖 Assistant"
}

func renderConversation(conv chat.Conversation, theme widget.Theme) string {
	if len(conv) == 0 {
		return "(empty conversation)"
	}
	var b strings.Builder
	for i, m := range conv {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(speaker(m.Sender, theme))
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

func controlsKeyboard(st widget.State, workshopURL string) tgbotapi.InlineKeyboardMarkup {
	mode := "Detailed answers"
	if st.Detailed {
		mode = "Simple answers"
	}
	theme := "🌙 Dark"
	if st.Theme == widget.ThemeDark {
		theme = "☀️ Light"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💾 Save", cbSave),
			tgbotapi.NewInlineKeyboardButtonData("🕘 History", cbHistory),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mode, cbMode),
			tgbotapi.NewInlineKeyboardButtonData(theme, cbTheme),
		),
	}
	if workshopURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🏠 Virtual workshop", workshopURL),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func suggestionsKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(chat.Suggestions))
	for i, s := range chat.Suggestions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s.Label, cbSuggest+strconv.Itoa(i)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func askKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Send", cbAskInput),
	))
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💬 Current chat", cbChat),
	))
}

// historyKeyboard lists the most recent saves first; Telegram caps the
// callback payload at 64 bytes, which a history key fits in.
func historyKeyboard(keys []string) tgbotapi.InlineKeyboardMarkup {
	const maxRows = 20
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, maxRows+1)
	for i := len(keys) - 1; i >= 0 && len(rows) < maxRows; i-- {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(history.Label(keys[i]), cbOpen+keys[i]),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💬 Current chat", cbChat),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
