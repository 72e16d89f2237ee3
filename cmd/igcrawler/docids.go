package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igcrawler/pkg/docid"
	"igcrawler/pkg/logger"
)

var docidsSave bool

// docidsCmd represents the docids command
var docidsCmd = &cobra.Command{
	Use:   "docids",
	Short: "Discover and validate profile query identifiers",
	Long: `The GraphQL doc id identifying the profile query rotates when the site
ships new frontend bundles, and a stale id silently stops returning data.

This command scans the public pages and script bundles for candidate ids,
probes each candidate against a known profile, and reports which ids are
live. With --save the result is written to the registry file, and later
crawls prefer the validated id over the configured default.`,
	Example: `  # Probe candidates and print the verdicts
  igcrawler docids

  # Probe and persist the result for future crawls
  igcrawler docids --save`,
	Run: runDocIDs,
}

func init() {
	rootCmd.AddCommand(docidsCmd)
	docidsCmd.Flags().BoolVar(&docidsSave, "save", false, "write validated ids to the registry file")
}

func runDocIDs(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	requireSession(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	finder := docid.NewFinder(
		client,
		cfg.DocIDs.ProbeUserID,
		cfg.DocIDs.ProbeDelay,
		cfg.DocIDs.MaxCandidates,
		logger.GetLogger(),
	)

	fmt.Println("collecting candidates...")
	candidates, err := finder.Collect(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "collection failed:", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Println("no candidates found")
		return
	}
	fmt.Printf("probing %d candidate(s), this takes about %s...\n",
		len(candidates), (time.Duration(len(candidates)) * cfg.DocIDs.ProbeDelay).Round(time.Second))

	doc, err := finder.Validate(ctx, candidates)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("interrupted")
			return
		}
		fmt.Fprintln(os.Stderr, "validation failed:", err)
		os.Exit(1)
	}

	if len(doc.ValidDocIDs) == 0 {
		fmt.Println("no valid doc ids found; the configured default stays in effect")
		return
	}
	fmt.Printf("valid doc ids: %v\nrecommended:   %s\n", doc.ValidDocIDs, doc.Recommended)

	if docidsSave {
		if err := docid.Save(cfg.DocIDs.RegistryFile, doc); err != nil {
			fmt.Fprintln(os.Stderr, "failed to save registry:", err)
			os.Exit(1)
		}
		fmt.Println("saved to", cfg.DocIDs.RegistryFile)
	}
}
