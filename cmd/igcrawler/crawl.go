package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igcrawler/pkg/logger"
	"igcrawler/pkg/ratelimit"
	"igcrawler/pkg/scraper"
)

var (
	crawlForce bool
	crawlLimit int
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [handles...]",
	Short: "Crawl pending profiles, or specific handles",
	Long: `Crawl profiles serially: resolve each handle to its user id, fetch the
profile, highlights, and posts, and persist everything to the database.

Without arguments, every pending profile in the database is crawled in
oldest-first order. With handle arguments, those handles are seeded first
and then crawled in the same run.

The crawl can be interrupted at any time with Ctrl-C; completed profiles
stay persisted and the next run resumes from the remaining pending set.`,
	Example: `  # Work through the pending backlog
  igcrawler crawl

  # Crawl two specific profiles
  igcrawler crawl natgeo nasa

  # Re-crawl everything, at most 50 profiles
  igcrawler crawl --force --limit 50`,
	Run: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().BoolVar(&crawlForce, "force", false, "re-crawl profiles that are already complete")
	crawlCmd.Flags().IntVar(&crawlLimit, "limit", 0, "maximum number of profiles to crawl (0 = unlimited)")
}

func runCrawl(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	requireSession(cfg)

	if crawlForce {
		cfg.Crawl.ForceRescrape = true
	}
	if crawlLimit > 0 {
		cfg.Crawl.Limit = crawlLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(1)
	}
	defer store.Close()

	if len(args) > 0 {
		inserted, err := store.Seed(ctx, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to seed handles:", err)
			os.Exit(1)
		}
		if inserted > 0 {
			fmt.Printf("seeded %d new handle(s)\n", inserted)
		}
	}

	policy := ratelimit.NewPolicy(
		cfg.RateLimit.Cooldown,
		cfg.RateLimit.DelayMin,
		cfg.RateLimit.DelayMax,
		cfg.RateLimit.Penalty,
		logger.GetLogger(),
	)
	crawler := scraper.New(
		newClient(cfg), store, policy,
		cfg.Crawl.ForceRescrape, cfg.RateLimit.MaxAuthFailures,
		logger.GetLogger(),
	)

	var summary *scraper.Summary
	if len(args) > 0 {
		summary, err = crawler.CrawlHandles(ctx, args, printResult)
	} else {
		summary, err = crawler.CrawlPending(ctx, cfg.Crawl.Limit, printResult)
	}

	if summary != nil {
		fmt.Printf("\ncrawled %d, skipped %d, failed %d\n",
			summary.Crawled, summary.Skipped, summary.Failed)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("interrupted, progress saved")
			return
		}
		fmt.Fprintln(os.Stderr, "crawl stopped:", err)
		os.Exit(1)
	}
}

func printResult(r scraper.Result) {
	switch r.Status {
	case scraper.StatusCrawled:
		fmt.Printf("  %-30s ok  (%d posts, %d highlights)\n", r.Handle, r.PostsSaved, r.HighlightsSaved)
	case scraper.StatusSkipped:
		fmt.Printf("  %-30s already complete\n", r.Handle)
	case scraper.StatusFailed:
		fmt.Printf("  %-30s failed (%s)\n", r.Handle, r.FailureKind)
	}
}
