package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"car-assistant/internal/config"
)

type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	a := &app{log: newLogger("info")}
	if err := newRootCommand(a).Execute(); err != nil {
		a.log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "car-assistant",
		Short:         "Conversational car maintenance assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.AddCommand(a.serveCommand(), a.historyCommand(), a.askCommand())
	return root
}

func (a *app) init() error {
	// a missing .env is fine, the environment may already be populated
	envErr := godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel)
	if envErr != nil {
		a.log.Debug().Err(envErr).Msg(".env file not loaded")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Logger()
}
