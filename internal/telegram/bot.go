package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"car-assistant/internal/auth"
	"car-assistant/internal/widget"
)

// laneSize bounds the updates waiting for one chat.
const laneSize = 32

// ReportFunc produces the usage report text.
type ReportFunc func(ctx context.Context) (string, error)

type Options struct {
	Auth        *auth.Service
	Sessions    *widget.Manager
	AdminUserID int64
	WorkshopURL string
	Report      ReportFunc
	Logger      zerolog.Logger
}

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	authSvc     *auth.Service
	sessions    *widget.Manager
	adminUserID int64
	workshopURL string
	report      ReportFunc
	log         zerolog.Logger

	mu    sync.Mutex
	lanes map[int64]chan tgbotapi.Update
	wg    sync.WaitGroup
}

func New(botToken string, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "connect to telegram")
	}
	opts.Logger.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")
	b := newBot(botAPISender{api: api}, opts)
	b.api = api
	return b, nil
}

func newBot(s sender, opts Options) *Bot {
	authSvc := opts.Auth
	if authSvc == nil {
		authSvc = auth.New(nil)
	}
	return &Bot{
		s:           s,
		authSvc:     authSvc,
		sessions:    opts.Sessions,
		adminUserID: opts.AdminUserID,
		workshopURL: opts.WorkshopURL,
		report:      opts.Report,
		log:         opts.Logger,
		lanes:       make(map[int64]chan tgbotapi.Update),
	}
}

// Start polls for updates until ctx is cancelled. Updates of one chat are
// handled in arrival order; different chats proceed independently.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram api not initialised")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	defer b.drain()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	chat := update.FromChat()
	if chat == nil {
		return
	}
	b.mu.Lock()
	lane, ok := b.lanes[chat.ID]
	if !ok {
		lane = make(chan tgbotapi.Update, laneSize)
		b.lanes[chat.ID] = lane
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for upd := range lane {
				b.handleUpdate(ctx, upd)
			}
		}()
	}
	b.mu.Unlock()

	// a full lane must not stall the poll loop for every other chat
	select {
	case lane <- update:
	default:
		b.log.Warn().Int64("chat_id", chat.ID).Msg("chat is busy, update dropped")
		if update.CallbackQuery != nil {
			b.answerCallback(update.CallbackQuery, "Still working on your previous requests.")
			return
		}
		b.sendMessage(chat.ID, "Still working on your previous messages, please wait.")
	}
}

func (b *Bot) drain() {
	b.mu.Lock()
	for id, lane := range b.lanes {
		close(lane)
		delete(b.lanes, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
			return
		}
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// SendReport delivers the usage report to the admin chat.
func (b *Bot) SendReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		return errors.New("ADMIN_USER is not configured")
	}
	if b.report == nil {
		return errors.New("report is not configured")
	}
	text, err := b.report(ctx)
	if err != nil {
		return errors.Wrap(err, "build report")
	}
	b.sendMessage(b.adminUserID, text)
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.sendWithMarkup(chatID, text, nil)
}

// sendWithMarkup attaches markup to the last chunk of a long text.
func (b *Bot) sendWithMarkup(chatID int64, text string, markup interface{}) {
	chunks := splitMessage(text, maxMessageLen)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == len(chunks)-1 && markup != nil {
			msg.ReplyMarkup = markup
		}
		if _, err := b.s.Send(msg); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
			return
		}
	}
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Warn().Err(err).Msg("failed to answer callback")
	}
}
