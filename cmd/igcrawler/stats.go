package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show crawl progress",
	Long:  `Show how many profiles are stored, how many are complete, and the media totals.`,
	Run:   runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(1)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read stats:", err)
		os.Exit(1)
	}

	fmt.Printf("profiles:   %d total, %d complete (%.1f%%), %d pending, %d inactive\n",
		stats.TotalProfiles, stats.CompleteProfiles, stats.Progress(),
		stats.PendingProfiles, stats.InactiveProfiles)
	fmt.Printf("            %d private, %d business\n",
		stats.PrivateProfiles, stats.BusinessProfiles)
	fmt.Printf("media:      %d total, %d posts, %d highlights\n",
		stats.TotalMedia, stats.TotalPosts, stats.TotalHighlights)
}
