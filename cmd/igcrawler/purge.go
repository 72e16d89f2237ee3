package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var purgeYes bool

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every profile and media row",
	Long: `Delete everything from the database. The schema stays in place so the
next seed or crawl starts from a clean slate.

This cannot be undone.`,
	Run: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "skip the confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	if !purgeYes {
		fmt.Printf("delete all data in %s? (y/N): ", cfg.Database.Path)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("aborted")
			return
		}
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.PurgeAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to purge:", err)
		os.Exit(1)
	}
	fmt.Println("database purged")
}
