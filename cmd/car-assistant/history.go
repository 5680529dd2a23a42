package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"car-assistant/internal/history"
	"car-assistant/internal/storage"
	"car-assistant/internal/widget"
)

func (a *app) historyCommand() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved conversations",
	}
	cmd.PersistentFlags().Int64Var(&chatID, "chat", 0, "Telegram chat id whose conversations to read")
	_ = cmd.MarkPersistentFlagRequired("chat")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(chatID, func(store *history.Store) error {
				entries, err := store.Scan(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					if e.Err != nil {
						fmt.Fprintf(out, "%s\tunreadable: %v\n", e.Key, e.Err)
						continue
					}
					fmt.Fprintf(out, "%s\t%s\t%d messages\n", e.Key, history.Label(e.Key), len(e.Conversation))
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Print one saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(chatID, func(store *history.Store) error {
				conv, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, history.Label(args[0]))
				for _, m := range conv {
					fmt.Fprintf(out, "[%s] %s\n", m.Sender, m.Text)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) withHistory(chatID int64, fn func(*history.Store) error) error {
	kv, err := storage.Open(a.cfg.StoreDriver, a.cfg.StorePath)
	if err != nil {
		return err
	}
	defer kv.Close()
	return fn(history.NewStore(storage.Namespace(kv, widget.ChatNamespace(chatID)), history.WithLogger(a.log)))
}
