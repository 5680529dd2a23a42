package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"car-assistant/internal/analytics"
	"car-assistant/internal/auth"
	"car-assistant/internal/llm"
	"car-assistant/internal/scheduler"
	"car-assistant/internal/storage"
	"car-assistant/internal/telegram"
	"car-assistant/internal/widget"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the daily report scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) completer() (*llm.Completer, error) {
	client, err := llm.NewFactory(a.cfg).CreateClient(a.cfg.LLMProvider, a.cfg.OpenAIModel)
	if err != nil {
		return nil, err
	}
	return llm.NewCompleter(client, a.log), nil
}

// recorder returns nil when the exchange log is disabled or cannot be opened.
func (a *app) recorder() *storage.FileRecorder {
	if a.cfg.LogFilePath == "" {
		return nil
	}
	rec, err := storage.NewFileRecorder(a.cfg.LogFilePath)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.LogFilePath).Msg("exchange log disabled")
		return nil
	}
	return rec
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.ValidateBot(); err != nil {
		return err
	}
	kv, err := storage.Open(a.cfg.StoreDriver, a.cfg.StorePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	completer, err := a.completer()
	if err != nil {
		return err
	}

	var rec storage.Recorder
	fileRec := a.recorder()
	if fileRec != nil {
		rec = fileRec
	}
	sessions := widget.NewManager(kv, completer, rec, a.log)
	defer sessions.Close()

	bot, err := telegram.New(a.cfg.TelegramBotToken, telegram.Options{
		Auth:        auth.New(a.cfg.AllowedUsers),
		Sessions:    sessions,
		AdminUserID: a.cfg.AdminUserID,
		WorkshopURL: a.cfg.WorkshopURL,
		Report:      dailyReport(fileRec),
		Logger:      a.log,
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(a.cfg.ReportSchedule, bot.SendReport, a.log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()
	a.log.Info().
		Str("store", a.cfg.StoreDriver).
		Str("provider", string(a.cfg.LLMProvider)).
		Time("next_report", sched.Next()).
		Msg("car assistant started")

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error {
		// the eviction loop has nothing to do once the bot is gone
		defer cancel()
		return bot.Start(gctx)
	})
	g.Go(func() error {
		return sessions.RunEviction(gctx, evictionInterval(a.cfg.SessionIdleTimeout), a.cfg.SessionIdleTimeout)
	})
	return g.Wait()
}

func evictionInterval(idle time.Duration) time.Duration {
	if idle <= 0 {
		return 0
	}
	if iv := idle / 4; iv > time.Minute {
		return iv
	}
	return time.Minute
}

func dailyReport(rec *storage.FileRecorder) telegram.ReportFunc {
	return func(context.Context) (string, error) {
		if rec == nil {
			return "", errors.New("exchange log is disabled")
		}
		events, err := rec.LoadEvents()
		if err != nil {
			return "", err
		}
		return analytics.AnalyzeDay(events, time.Now().UTC()).Summary(), nil
	}
}
