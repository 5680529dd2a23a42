package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"car-assistant/internal/history"
	"car-assistant/internal/storage"
	"car-assistant/internal/widget"
)

func (a *app) askCommand() *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completer, err := a.completer()
			if err != nil {
				return err
			}
			s, err := widget.NewSession(cmd.Context(), widget.Options{
				Store:     history.NewStore(storage.NewMemoryKV()),
				Completer: completer,
				Logger:    a.log,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			if detailed {
				s.ToggleDetailed()
			}
			ex, err := s.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if ex.Completion.Err != nil {
				a.log.Warn().Err(ex.Completion.Err).Msg("model request failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), ex.Bot.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Ask for a detailed explanation")
	return cmd
}
