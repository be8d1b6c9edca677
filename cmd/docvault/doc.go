package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/documents"
	"github.com/TheMichaelB/docvault/internal/vault"
)

var docCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"docs", "document"},
	Short:   "Manage encrypted documents",
}

var (
	docTitle     string
	docType      string
	docText      string
	docTextFiles []string
	docTags      []string

	docArchived  bool
	docFavorites bool
	docTag       string

	docExpiry      string
	docClearExpiry bool
	docFavorite    bool
	docArchive     bool

	docWithin int
)

var docAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Encrypt a file into the vault",
	Long: `Add encrypts a PDF or image into the vault. Recognized text, if given,
is indexed for search and used to suggest a type, tags and an expiry date.`,
	Example: `  docvault doc add scan.pdf --title "Passport" --text-file page1.txt --text-file page2.txt
  docvault doc add receipt.jpg --type RECEIPT --tag groceries`,
	Args: cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		var pages []string
		for _, name := range docTextFiles {
			data, err := os.ReadFile(name)
			if err != nil {
				return fmt.Errorf("read text file: %w", err)
			}
			pages = append(pages, string(data))
		}

		req := documents.CreateRequest{
			FilePath:        args[0],
			Title:           docTitle,
			RecognizedText:  docText,
			RecognizedPages: pages,
			Tags:            docTags,
		}
		if docType != "" {
			t, err := models.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			req.RequestedType = t
		}

		doc, err := svc.Documents.CreateDocument(ctx, req)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(doc)
			return nil
		}
		printSuccess("Added %s", doc.Title)
		printDocument(doc)
		if s := doc.Metadata.SuggestedType; s != nil {
			printInfo("Detected %s (%.0f%% confidence)", s.Type, s.Confidence*100)
		}
		return nil
	}),
}

var docListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List documents, newest first",
	Args:    cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		opts := documents.ListOptions{
			IncludeArchived: docArchived,
			FavoritesOnly:   docFavorites,
			Tag:             docTag,
		}
		if docType != "" {
			t, err := models.ParseDocumentType(docType)
			if err != nil {
				return err
			}
			opts.Type = t
		}

		docs, err := svc.Documents.ListDocuments(ctx, opts)
		if err != nil {
			return err
		}
		printDocuments(docs)
		return nil
	}),
}

var docShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a document and its extracted details",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		doc, err := svc.Documents.GetDocument(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(doc)
			return nil
		}

		printDocument(doc)
		md := doc.Metadata
		fmt.Printf("    %s, %s\n", md.MimeType, humanize.Comma(md.FileSize)+" bytes")
		if md.DocumentNumber != "" {
			fmt.Printf("    Number: %s\n", md.DocumentNumber)
		}
		if md.Amount != "" {
			fmt.Printf("    Amount: %s %s\n", md.Amount, md.Currency)
		}
		if md.Summary != "" {
			fmt.Printf("    %s\n", dimColor.Sprint(md.Summary))
		}
		for _, e := range md.ExtractedEntities {
			fmt.Printf("    %-7s %s\n", e.Type, e.Value)
		}
		return nil
	}),
}

var docOpenCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Decrypt a document to a temporary file",
	Long: `Open writes a decrypted copy of the document to the vault's temp
directory and keeps it until you press Enter, the view expires, or the
command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		doc, err := svc.Documents.GetDocument(ctx, args[0])
		if err != nil {
			return err
		}
		path, err := svc.Documents.DecryptForViewing(ctx, doc)
		if err != nil {
			return err
		}
		defer svc.Documents.CloseView(doc.ID)

		if jsonOutput {
			printJSON(map[string]interface{}{"id": doc.ID, "path": path})
		} else {
			printSuccess("Decrypted to %s", path)
			printInfo("Press Enter to remove the copy (expires in %s)", cfg.Documents.ViewTTL)
		}

		done := make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
		case <-time.After(cfg.Documents.ViewTTL):
		}
		return nil
	}),
}

var docUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a document's details",
	Example: `  docvault doc update 3f2a... --title "Passport (old)" --archive
  docvault doc update 3f2a... --expiry 2030-01-14 --tag travel --tag personal`,
	Args: cobra.ExactArgs(1),
}

func updateDocument(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
	flags := docUpdateCmd.Flags()
	var patch documents.DocumentPatch

	if flags.Changed("title") {
		patch.Title = &docTitle
	}
	if flags.Changed("type") {
		t, err := models.ParseDocumentType(docType)
		if err != nil {
			return err
		}
		patch.Type = &t
	}
	if flags.Changed("text") {
		patch.PlainTextIndex = &docText
	}
	if flags.Changed("tag") {
		patch.Tags = &docTags
	}
	if flags.Changed("expiry") {
		t, err := time.Parse("2006-01-02", docExpiry)
		if err != nil {
			return &models.ValidationError{Field: "expiry", Reason: "use YYYY-MM-DD"}
		}
		patch.ExpiryDate = &t
	}
	patch.ClearExpiry = docClearExpiry
	if flags.Changed("favorite") {
		patch.IsFavorite = &docFavorite
	}
	if flags.Changed("archive") {
		patch.IsArchived = &docArchive
	}

	ok, err := svc.Documents.UpdateDocument(ctx, args[0], patch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s: %w", args[0], models.ErrNotFound)
	}

	doc, err := svc.Documents.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(doc)
	} else {
		printSuccess("Updated")
		printDocument(doc)
	}
	return nil
}

var docRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a document and its encrypted file",
	Args:    cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		ok, err := svc.Documents.DeleteDocument(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("document %s: %w", args[0], models.ErrNotFound)
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "id": args[0]})
		} else {
			printSuccess("Deleted %s", args[0])
		}
		return nil
	}),
}

var docRelatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List documents with similar text",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, args []string) error {
		related, err := svc.Documents.RelatedDocuments(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(related)
			return nil
		}
		if len(related) == 0 {
			printInfo("No related documents")
			return nil
		}
		for _, r := range related {
			fmt.Printf("%3.0f%%  ", r.Score*100)
			printDocument(r.Document)
		}
		return nil
	}),
}

var docExpiringCmd = &cobra.Command{
	Use:   "expiring",
	Short: "List documents that expire soon",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, _ *vault.Vault, svc *vault.Services, _ []string) error {
		docs, err := svc.Documents.ExpiringSoon(ctx, time.Duration(docWithin)*24*time.Hour)
		if err != nil {
			return err
		}
		printDocuments(docs)
		return nil
	}),
}

func init() {
	docUpdateCmd.RunE = run(updateDocument)
	docUpdateFlags := docUpdateCmd.Flags()

	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docAddCmd, docListCmd, docShowCmd, docOpenCmd, docUpdateCmd,
		docRemoveCmd, docRelatedCmd, docExpiringCmd)

	docAddCmd.Flags().StringVarP(&docTitle, "title", "t", "", "Title (default: file name)")
	docAddCmd.Flags().StringVar(&docType, "type", "", "Type used when none is detected")
	docAddCmd.Flags().StringVar(&docText, "text", "", "Recognized text")
	docAddCmd.Flags().StringArrayVar(&docTextFiles, "text-file", nil, "File holding the recognized text of one page (repeatable, in page order)")
	docAddCmd.Flags().StringSliceVar(&docTags, "tag", nil, "Tag (repeatable)")

	docListCmd.Flags().BoolVarP(&docArchived, "all", "a", false, "Include archived documents")
	docListCmd.Flags().BoolVar(&docFavorites, "favorites", false, "Only favorites")
	docListCmd.Flags().StringVar(&docType, "type", "", "Only this type")
	docListCmd.Flags().StringVar(&docTag, "tag", "", "Only documents with this tag")

	docUpdateFlags.StringVarP(&docTitle, "title", "t", "", "New title")
	docUpdateFlags.StringVar(&docType, "type", "", "New type")
	docUpdateFlags.StringVar(&docText, "text", "", "Replace the indexed text")
	docUpdateFlags.StringSliceVar(&docTags, "tag", nil, "Replace tags (repeatable)")
	docUpdateFlags.StringVar(&docExpiry, "expiry", "", "Expiry date, YYYY-MM-DD")
	docUpdateFlags.BoolVar(&docClearExpiry, "clear-expiry", false, "Remove the expiry date")
	docUpdateFlags.BoolVar(&docFavorite, "favorite", false, "Mark or unmark as favorite")
	docUpdateFlags.BoolVar(&docArchive, "archive", false, "Archive or unarchive")

	docExpiringCmd.Flags().IntVarP(&docWithin, "within", "w", 0, "Days ahead (default: documents.expiry_warning_days)")
}

func printDocuments(docs []*models.Document) {
	if jsonOutput {
		printJSON(docs)
		return
	}
	if len(docs) == 0 {
		printInfo("No documents")
		return
	}
	for _, doc := range docs {
		printDocument(doc)
	}
}
