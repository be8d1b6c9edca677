package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/vault"
)

var reconcileRepair bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check encrypted files against vault records",
	Long: `Reconcile finds encrypted files no document points at, documents whose
file is missing, interrupted ingests, links to deleted records and wrong tag
counts. With --repair, leftover files are removed, dangling links are
stripped and tag counts are rebuilt.`,
	Args: cobra.NoArgs,
	RunE: run(func(ctx context.Context, v *vault.Vault, _ *vault.Services, _ []string) error {
		rep, err := v.Reconcile(ctx, reconcileRepair)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(rep)
			return nil
		}

		if len(rep.Findings) == 0 {
			printSuccess("Vault is consistent")
			return nil
		}
		for _, f := range rep.Findings {
			printWarning("%-18s %s  %s", f.Kind, f.Ref, f.Detail)
		}
		if reconcileRepair {
			printSuccess("Repaired %d", rep.Repaired)
		} else {
			printInfo("Run with --repair to fix")
		}
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vault statistics",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, v *vault.Vault, _ *vault.Services, _ []string) error {
		stats, err := v.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(stats)
			return nil
		}

		fmt.Printf("Documents  %s (%s encrypted in %d files)\n",
			humanize.Comma(int64(stats.Documents)), humanize.Bytes(uint64(stats.BlobBytes)), stats.Blobs)
		fmt.Printf("Notes      %s\n", humanize.Comma(int64(stats.Notes)))
		fmt.Printf("Messages   %s\n", humanize.Comma(int64(stats.Chat)))
		fmt.Printf("Tags       %s\n", humanize.Comma(int64(stats.Tags)))

		keys := make([]string, 0, len(stats.Counters))
		for k, val := range stats.Counters {
			if val != 0 {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s %v\n", dimColor.Sprint(k), stats.Counters[k])
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reconcileCmd, statsCmd)
	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "Remove orphans and fix references")
}
