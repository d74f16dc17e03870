// Package main provides the entry point for the job offer ingestion agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ingest_agent",
	Short: "Job offer ingestion agent",
	Long: "ingest_agent discovers job offers on Polish job boards, fetches and parses each offer " +
		"through a durable queue, and keeps a canonical offer store current.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
