package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var seedFamous bool

// famousHandles is a starter set of large public profiles, useful for a
// first run against an empty database.
var famousHandles = []string{
	"instagram", "cristiano", "leomessi", "selenagomez", "kyliejenner",
	"therock", "arianagrande", "kimkardashian", "beyonce", "khloekardashian",
	"natgeo", "nike", "justinbieber", "kendalljenner", "taylorswift",
	"virat.kohli", "jlo", "nickiminaj", "kourtneykardash", "mileycyrus",
	"neymarjr", "katyperry", "zendaya", "realmadrid", "fcbarcelona",
}

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed [handles...]",
	Short: "Add handles to the crawl backlog",
	Long: `Add handles to the database as pending profiles without crawling them.

Seeding never overwrites crawled data: a handle that already exists in
the database is left untouched, whatever its state.`,
	Example: `  # Seed specific handles
  igcrawler seed natgeo nasa spacex

  # Seed a starter list of large public profiles
  igcrawler seed --famous`,
	Run: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().BoolVar(&seedFamous, "famous", false, "seed a built-in list of large public profiles")
}

func runSeed(cmd *cobra.Command, args []string) {
	handles := args
	if seedFamous {
		handles = append(handles, famousHandles...)
	}
	if len(handles) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to seed: pass handles or --famous")
		os.Exit(1)
	}

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

	inserted, err := store.Seed(ctx, handles)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to seed handles:", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d new handle(s), %d already known\n", inserted, len(handles)-inserted)
}
