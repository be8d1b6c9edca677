package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/notes"
	"github.com/TheMichaelB/docvault/internal/vault"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	Aliases: []string{"notes"},
	Short:   "Manage notes",
}

var (
	noteTitle     string
	noteContent   string
	noteDocs      []string
	noteLinks     []string
	noteTags      []string
	noteFavorite  bool
	noteFavorites bool
	noteTag       string
	noteDoc       string
)

var noteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note",
	Example: `  docvault note add --title "Renewal" --content "Book appointment" --doc 3f2a...
  docvault note add --title "Trip" --note 91bc... --tag travel`,
	Args: cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		note, err := svc.Notes.Create(ctx, notes.CreateRequest{
			Title:           noteTitle,
			Content:         noteContent,
			LinkedDocuments: noteDocs,
			LinkedNotes:     noteLinks,
			Tags:            noteTags,
			IsFavorite:      noteFavorite,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(note)
			return nil
		}
		printSuccess("Created note")
		printNote(note)
		return nil
	}),
}

var noteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List notes, most recently updated first",
	Args:    cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		list, err := svc.Notes.List(ctx, notes.ListOptions{
			Tag:            noteTag,
			FavoritesOnly:  noteFavorites,
			LinkedDocument: noteDoc,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
			return nil
		}
		if len(list) == 0 {
			printInfo("No notes")
		}
		for _, n := range list {
			printNote(n)
		}
		return nil
	}),
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		note, err := svc.Notes.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(note)
			return nil
		}
		printNote(note)
		if note.Content != "" {
			fmt.Printf("\n%s\n\n", note.Content)
		}
		for _, id := range note.LinkedDocuments {
			fmt.Printf("    document %s\n", id)
		}
		for _, id := range note.LinkedNotes {
			fmt.Printf("    note     %s\n", id)
		}
		return nil
	}),
}

var noteLinkCmd = &cobra.Command{
	Use:   "link <note-id> <note-id>",
	Short: "Link two notes to each other",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		if err := svc.Notes.Link(ctx, args[0], args[1]); err != nil {
			return err
		}
		return linkResult("Linked", args)
	}),
}

var noteUnlinkCmd = &cobra.Command{
	Use:   "unlink <note-id> <note-id>",
	Short: "Remove the link between two notes",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		if err := svc.Notes.Unlink(ctx, args[0], args[1]); err != nil {
			return err
		}
		return linkResult("Unlinked", args)
	}),
}

var noteRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		ok, err := svc.Notes.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("note %s: %w", args[0], models.ErrNotFound)
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "id": args[0]})
		} else {
			printSuccess("Deleted %s", args[0])
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteShowCmd, noteLinkCmd, noteUnlinkCmd, noteRemoveCmd)

	noteAddCmd.Flags().StringVarP(&noteTitle, "title", "t", "", "Title (required)")
	noteAddCmd.Flags().StringVarP(&noteContent, "content", "m", "", "Body text")
	noteAddCmd.Flags().StringSliceVar(&noteDocs, "doc", nil, "Linked document id (repeatable)")
	noteAddCmd.Flags().StringSliceVar(&noteLinks, "note", nil, "Linked note id (repeatable)")
	noteAddCmd.Flags().StringSliceVar(&noteTags, "tag", nil, "Tag (repeatable)")
	noteAddCmd.Flags().BoolVar(&noteFavorite, "favorite", false, "Mark as favorite")
	_ = noteAddCmd.MarkFlagRequired("title")

	noteListCmd.Flags().StringVar(&noteTag, "tag", "", "Only notes with this tag")
	noteListCmd.Flags().BoolVar(&noteFavorites, "favorites", false, "Only favorites")
	noteListCmd.Flags().StringVar(&noteDoc, "doc", "", "Only notes linked to this document")
}

func linkResult(verb string, args []string) error {
	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "notes": args})
	} else {
		printSuccess("%s %s and %s", verb, args[0], args[1])
	}
	return nil
}
