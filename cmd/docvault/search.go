package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/vault"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search documents, notes and messages",
	Long: `Search matches the query case-insensitively against titles, text and
tags. Documents and notes are ranked by where the query matched; messages
are listed newest first.`,
	Example: `  docvault search passport
  docvault search "policy number" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		res, err := svc.Search.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(res)
			return nil
		}

		if res.Total() == 0 {
			printInfo("No matches")
			return nil
		}
		printHits("Documents", res.Documents)
		printHits("Notes", res.Notes)
		printHits("Messages", res.Chat)
		return nil
	}),
}

var tagCmd = &cobra.Command{
	Use:     "tag",
	Aliases: []string{"tags"},
	Short:   "Manage tags",
}

var tagListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tags with usage counts",
	Args:    cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		list, err := svc.Tags.List(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
			return nil
		}
		for _, t := range list {
			fmt.Printf("%-20s %s  %d documents, %d notes\n", t.Name, dimColor.Sprint(t.Color), t.DocumentCount, t.NoteCount)
		}
		return nil
	}),
}

var tagColorCmd = &cobra.Command{
	Use:     "color <name> <#rrggbb>",
	Short:   "Set a tag's colour",
	Example: `  docvault tag color travel "#10B981"`,
	Args:    cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		if err := svc.Tags.SetColor(ctx, args[0], args[1]); err != nil {
			return err
		}
		printSuccess("%s is now %s", args[0], args[1])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(searchCmd, tagCmd)
	tagCmd.AddCommand(tagListCmd, tagColorCmd)
}

func printHits(heading string, hits []models.SearchResult) {
	if len(hits) == 0 {
		return
	}
	infoColor.Printf("%s (%d)\n", heading, len(hits))
	for _, h := range hits {
		fmt.Printf("  %.2f  %s  %s\n", h.Relevance, h.Title, dimColor.Sprint(humanize.Time(h.Timestamp)))
		if h.Snippet != "" && h.Snippet != h.Title {
			fmt.Printf("        %s\n", dimColor.Sprint(h.Snippet))
		}
		fmt.Printf("        %s\n", dimColor.Sprint(h.ID))
	}
}
