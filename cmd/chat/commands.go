package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/finchat/internal/chatclient"
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		reply, err := client.Send(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		if reply.Text == chatclient.ErrorReply {
			return errors.New("chat request failed")
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the current conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if err := client.LoadHistory(cmd.Context()); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		printTranscript(cmd, client.Messages())
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := newClient().Reset()
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the server to rebuild its knowledge index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().RefreshIndex(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.Message)
		if n.Kind == chatclient.NotifyError {
			return errors.New(n.Message)
		}
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the current conversation id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), newClient().SessionID())
		return nil
	},
}

func printTranscript(cmd *cobra.Command, msgs []chatclient.Message) {
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "Start a conversation...")
		return
	}
	for _, m := range msgs {
		who := "Assistant"
		if m.IsUser {
			who = "You"
		}
		fmt.Fprintf(out, "%s: %s\n", who, m.Text)
	}
}
