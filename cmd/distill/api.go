package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Distill server via HTTP.

These commands require a running server (distill serve).
Use --server to specify a custom server URL.

Examples:
  distill api health              # Check server health
  distill api books list          # List all books
  distill api books get <id>      # Get a specific book
  distill api books process <id>  # Start distilling a book`,
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))

	// Books as subcommand group
	for _, ep := range endpoints.BookCommands() {
		if cmd := ep.Command(getServerURL); cmd != nil {
			booksCmd.AddCommand(cmd)
		}
	}

	apiCmd.AddCommand(booksCmd)
	rootCmd.AddCommand(apiCmd)
}
