package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/vault"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Quick messages that can become notes",
}

var (
	chatAttach []string
	chatLimit  int
	chatTitle  string
)

var chatPostCmd = &cobra.Command{
	Use:     "post <message...>",
	Short:   "Post a message",
	Example: `  docvault chat post "insurance renews in June" --attach 3f2a...`,
	Args:    cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		msg, err := svc.Chat.Post(ctx, strings.Join(args, " "), chatAttach)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(msg)
			return nil
		}
		printChat(msg)
		return nil
	}),
}

var chatListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List messages, newest first",
	Args:    cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		msgs, err := svc.Chat.List(ctx, chatLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(msgs)
			return nil
		}
		if len(msgs) == 0 {
			printInfo("No messages")
		}
		for _, m := range msgs {
			printChat(m)
		}
		return nil
	}),
}

var chatToNoteCmd = &cobra.Command{
	Use:   "to-note <id>",
	Short: "Turn a message into a note",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		note, err := svc.Chat.ConvertToNote(ctx, args[0], chatTitle)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(note)
			return nil
		}
		printSuccess("Converted to note")
		printNote(note)
		return nil
	}),
}

var chatRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a message",
	Args:    cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		ok, err := svc.Chat.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("message %s: %w", args[0], models.ErrNotFound)
		}
		printSuccess("Deleted %s", args[0])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatPostCmd, chatListCmd, chatToNoteCmd, chatRemoveCmd)

	chatPostCmd.Flags().StringSliceVar(&chatAttach, "attach", nil, "Attached document id (repeatable)")
	chatListCmd.Flags().IntVarP(&chatLimit, "limit", "l", 20, "Max messages (0 for all)")
	chatToNoteCmd.Flags().StringVarP(&chatTitle, "title", "t", "", "Note title (default: start of the message)")
}
