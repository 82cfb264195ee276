package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running dramatis server via HTTP.

These commands require a running server (dramatis serve).
Use --server to specify a custom server URL.

Examples:
  dramatis api health              # Check server health
  dramatis api runs list           # List runs
  dramatis api runs cancel <id>    # Cancel a run`,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Run management commands",
}

var apiHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodGet, "/health")
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodGet, "/runs")
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodGet, "/runs/"+args[0])
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodPost, "/runs/"+args[0]+"/cancel")
	},
}

var runsCancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every live run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiCall(http.MethodPost, "/runs/cancel-all")
	},
}

// apiCall issues one request and prints the JSON body as-is.
func apiCall(method, path string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, serverURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "%s\n", body)
		return fmt.Errorf("server returned %s", resp.Status)
	}
	fmt.Printf("%s\n", body)
	return nil
}

func init() {
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	apiCmd.AddCommand(apiHealthCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsCancelCmd)
	runsCmd.AddCommand(runsCancelAllCmd)
	apiCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(apiCmd)
}
