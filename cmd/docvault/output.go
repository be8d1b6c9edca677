package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/TheMichaelB/docvault/internal/models"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}

func printDocument(doc *models.Document) {
	marks := ""
	if doc.IsFavorite {
		marks += " ★"
	}
	if doc.IsArchived {
		marks += " (archived)"
	}
	fmt.Printf("%s  %-12s %s%s\n", dimColor.Sprint(doc.ID), doc.Type, doc.Title, marks)

	details := []string{
		humanize.Bytes(uint64(doc.Metadata.FileSize)),
		"added " + humanize.Time(doc.CreatedAt),
	}
	if doc.ExpiryDate != nil {
		details = append(details, "expires "+expiry(*doc.ExpiryDate))
	}
	if len(doc.Tags) > 0 {
		details = append(details, "#"+strings.Join(doc.Tags, " #"))
	}
	fmt.Printf("    %s\n", dimColor.Sprint(strings.Join(details, " · ")))
}

func printNote(note *models.Note) {
	fav := ""
	if note.IsFavorite {
		fav = " ★"
	}
	fmt.Printf("%s  %s%s\n", dimColor.Sprint(note.ID), note.Title, fav)
	details := []string{"updated " + humanize.Time(note.UpdatedAt)}
	if n := len(note.LinkedDocuments) + len(note.LinkedNotes); n > 0 {
		details = append(details, fmt.Sprintf("%d links", n))
	}
	if len(note.Tags) > 0 {
		details = append(details, "#"+strings.Join(note.Tags, " #"))
	}
	fmt.Printf("    %s\n", dimColor.Sprint(strings.Join(details, " · ")))
}

func printChat(msg *models.ChatMessage) {
	mark := ""
	if msg.IsNote {
		mark = dimColor.Sprintf(" → note %s", msg.NoteID)
	}
	fmt.Printf("%s  %s  %s%s\n", dimColor.Sprint(msg.ID), humanize.Time(msg.Timestamp), msg.Content, mark)
}

func expiry(t time.Time) string {
	s := t.Format("2006-01-02")
	if time.Until(t) < 0 {
		return warnColor.Sprintf("%s (expired)", s)
	}
	return fmt.Sprintf("%s (%s)", s, humanize.Time(t))
}
