package main

import (
	"github.com/spf13/cobra"

	"github.com/rowanlight/dramatis/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dramatis",
	Short: "Character profile extraction pipeline for book-length text",
	Long: `Dramatis reads book-length text and builds character profiles with
LLM-powered analysis.

The pipeline includes:
  - Content validation (language, quality, literary classification)
  - Title and author identification
  - Cleaning and sentence-aware chunking
  - Per-chunk character extraction with fuzzy identity resolution
  - Relationship graph construction`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.dramatis/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
}
