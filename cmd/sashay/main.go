package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Doesntmeananything/sashay/internal/client"
	"github.com/Doesntmeananything/sashay/internal/ui"
)

var serverURL string

func defaultServerURL() string {
	if s := os.Getenv("SASHAY_SERVER"); s != "" {
		return s
	}
	if p, err := loadProfile(); err == nil && p.Server != "" {
		return p.Server
	}
	return "http://localhost:8080"
}

// newAPIClient builds an API client carrying the saved session, if any.
func newAPIClient() *client.HTTPClient {
	sessionID := ""
	if p, err := loadProfile(); err == nil {
		sessionID = p.SessionID
	}
	return client.NewHTTPClient(serverURL, sessionID)
}

var rootCmd = &cobra.Command{
	Use:   "sashay <command>",
	Short: "Chat client for the sashay sync service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "server URL")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
