package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"igcrawler/pkg/export"
)

var exportOut string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export {profiles|media|json}",
	Short: "Export crawled data as CSV or JSON",
	Long: `Export the database contents.

  profiles   profile rows as CSV
  media      media rows as CSV
  json       everything as a single JSON document

Output goes to stdout unless --out names a file.`,
	Example: `  igcrawler export profiles --out profiles.csv
  igcrawler export json | jq '.profiles | length'`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"profiles", "media", "json"},
	Run:       runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) {
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

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to create output file:", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	switch args[0] {
	case "profiles":
		err = export.ProfilesCSV(ctx, store, w)
	case "media":
		err = export.MediaCSV(ctx, store, w)
	case "json":
		err = export.JSON(ctx, store, w)
	default:
		err = fmt.Errorf("unknown export format %q", args[0])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "export failed:", err)
		os.Exit(1)
	}
	if exportOut != "" {
		fmt.Println("exported to", exportOut)
	}
}
