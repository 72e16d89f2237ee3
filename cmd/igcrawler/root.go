package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igcrawler/pkg/auth"
	"igcrawler/pkg/config"
	"igcrawler/pkg/database"
	"igcrawler/pkg/docid"
	"igcrawler/pkg/instagram"
	"igcrawler/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	databasePath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igcrawler",
	Short: "A resumable Instagram profile crawler backed by SQLite",
	Long: `igcrawler walks a set of Instagram profiles one at a time, fetching each
profile's counters, post thumbnails, and highlight covers through the
GraphQL API, and persists everything to a local SQLite database.

The crawl is resumable: a profile whose counters are all stored is
considered complete and skipped on the next run, so an interrupted batch
picks up exactly where it left off. Failed profiles are flagged and
retried on later runs.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IGCRAWLER_SESSION_ID, IGCRAWLER_CSRF_TOKEN)`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./igcrawler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "database", "", "path to the SQLite database")

	rootCmd.SetVersionTemplate(`igcrawler {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig builds the effective configuration and applies stored
// credentials when the environment carries none.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if databasePath != "" {
		cfg.Database.Path = databasePath
	}

	logger.Initialize(&cfg.Logging)

	if !cfg.HasSession() {
		if manager, err := auth.NewManager(); err == nil {
			if account, err := manager.RetrieveDefault(); err == nil {
				account.ApplyTo(&cfg.Instagram)
				logger.WithField("account", account.Username).Debug("using stored credentials")
			}
		}
	}
	return cfg, nil
}

// openStore opens the database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, error) {
	return database.OpenStore(ctx, cfg.Database.Path)
}

// newClient builds the API client, preferring a registry-validated profile
// doc id over the configured default.
func newClient(cfg *config.Config) *instagram.Client {
	docIDs := instagram.DocIDs{
		Profile:    cfg.DocIDs.Profile,
		Highlights: cfg.DocIDs.Highlights,
		Posts:      cfg.DocIDs.Posts,
	}
	if doc, err := docid.Load(cfg.DocIDs.RegistryFile); err == nil && doc != nil && doc.Recommended != "" {
		docIDs.Profile = doc.Recommended
		logger.WithField("doc_id", doc.Recommended).Debug("using registry doc id")
	}
	return instagram.NewClient(&cfg.Instagram, docIDs, cfg.Crawl.PageSize, logger.GetLogger())
}

// requireSession exits unless the transport credentials are present.
func requireSession(cfg *config.Config) {
	if cfg.HasSession() {
		return
	}
	fmt.Fprintln(os.Stderr, "missing Instagram session credentials")
	fmt.Fprintln(os.Stderr, "run 'igcrawler auth login' or set IGCRAWLER_SESSION_ID and IGCRAWLER_CSRF_TOKEN")
	os.Exit(1)
}
